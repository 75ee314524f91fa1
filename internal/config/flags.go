package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagFlat        = flag.Bool("flat", false, "Emit position+texcoord only, without normals and tangents")
	flagNoDedup     = flag.Bool("no-dedup", false, "Emit one vertex per face corner, without an index buffer")
	flagDegenerate  = flag.Bool("allow-degenerate-uv", false, "Emit zero tangents for faces with degenerate UVs")
	flagCharset     = flag.String("charset", "", "Fallback charset for non-UTF-8 sources")
	flagConcurrency = flag.Int("concurrency", 0, "Parallel model loads")
	flagLogFile     = flag.String("log-file", "", "Write logs to file")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagFlat {
		cfg.Loader.NormalsAndTangents = false
	}
	if *flagNoDedup {
		cfg.Loader.Deduplicate = false
	}
	if *flagDegenerate {
		cfg.Loader.AllowDegenerateUV = true
	}
	if *flagCharset != "" {
		cfg.Loader.Charset = *flagCharset
	}
	if *flagConcurrency > 0 {
		cfg.Fetch.Concurrency = *flagConcurrency
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
}
