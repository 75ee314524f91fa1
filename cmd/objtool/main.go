// objtool is a CLI utility for inspecting, validating and exporting OBJ
// models.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/objmodel/internal/config"
	"github.com/Faultbox/objmodel/internal/loader"
	"github.com/Faultbox/objmodel/internal/logger"
)

// errUsage marks a command invoked with bad arguments.
var errUsage = errors.New("usage")

// app carries what every command needs.
type app struct {
	loader *loader.Loader
	log    *zap.Logger
	out    io.Writer
}

func main() {
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	command, cmdArgs := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)
	logger.Debug("running command", zap.String("command", command), zap.Strings("args", cmdArgs))

	l, err := loader.FromConfig(cfg, logger.Named("loader"))
	if err != nil {
		logger.Error("failed to create loader", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	defer l.Assets().Close()

	a := &app{loader: l, log: logger.Log, out: os.Stdout}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, command, cmdArgs); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			printUsage(os.Stderr)
		} else {
			logger.Error("command failed", zap.String("command", command), zap.Error(err))
		}
		logger.Sync()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "info":
		return a.cmdInfo(ctx, args)
	case "dump":
		return a.cmdDump(ctx, args)
	case "validate", "check":
		return a.cmdValidate(ctx, args)
	case "export", "x":
		return a.cmdExport(ctx, args)
	case "load":
		return a.cmdLoad(ctx, args)
	case "watch":
		return a.cmdWatch(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `objtool - OBJ model utility

Usage:
  objtool [flags] <command> [options]

Commands:
  info <src>                      Show counts, layout and bounds
  dump [-n N] <src>               Print per-vertex attributes
  validate <src...>               Parse sources, fail if any is invalid
  export <src> <out-prefix>       Write <prefix>.vbo and <prefix>.ibo
  load <manifest.yaml>            Load a scene manifest with textures
  watch <file>                    Re-parse a file on every change

Sources are local paths (resolved against the configured roots) or
http(s) URLs.

Flags:
  -config <file>          Config file (default: objtool.yaml search)
  -flat                   Position and texcoord only
  -no-dedup               One vertex per face corner, no index buffer
  -allow-degenerate-uv    Zero tangents instead of failing on flat UVs
  -charset <name>         Fallback charset for non-UTF-8 sources
  -concurrency <n>        Parallel model loads
  -debug                  Enable debug logging
  -log-file <file>        Also write logs to file

Examples:
  objtool info models/cube.obj
  objtool -flat dump -n 4 models/floor.obj
  objtool validate models/*.obj
  objtool export models/cube.obj build/cube
  objtool load scene.yaml`)
}
