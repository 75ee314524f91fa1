// Package config handles objtool configuration loading and management.
package config

import (
	"time"

	"github.com/Faultbox/objmodel/pkg/obj"
)

// Config holds all settings.
type Config struct {
	Loader  LoaderConfig  `yaml:"loader"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoaderConfig holds OBJ parsing settings.
type LoaderConfig struct {
	Deduplicate        bool     `yaml:"deduplicate"`
	NormalsAndTangents bool     `yaml:"normals_and_tangents"`
	AllowDegenerateUV  bool     `yaml:"allow_degenerate_uv"`
	Charset            string   `yaml:"charset"` // Fallback for non-UTF-8 sources
	Roots              []string `yaml:"roots"`   // Search directories for relative sources
}

// Options converts the loader settings to parser options.
func (c LoaderConfig) Options() obj.Options {
	return obj.Options{
		WithNormalsAndTangents: c.NormalsAndTangents,
		Deduplicate:            c.Deduplicate,
		AllowDegenerateUV:      c.AllowDegenerateUV,
	}
}

// FetchConfig holds source fetching settings.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"` // Parallel model loads
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			Deduplicate:        true,
			NormalsAndTangents: true,
			AllowDegenerateUV:  false,
			Charset:            "",
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
	}
}
