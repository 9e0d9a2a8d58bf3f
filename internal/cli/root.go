package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/kilnhq/kiln/internal"
)

// Represents the root command for the kiln tool.
var RootCmd struct {
	Quiet bool   `short:"q" help:"Suppress informational output."`
	Debug bool   `short:"d" help:"Enable debug output."`
	File  string `short:"f" help:"Override the default manifest path." placeholder:"PATH"`

	Run     RunCmd     `cmd:"" help:"Run a command from the manifest."`
	Build   BuildCmd   `cmd:"" help:"Build container images."`
	List    ListCmd    `cmd:"" help:"List commands or containers."`
	Clean   CleanCmd   `cmd:"" help:"Remove cache garbage or all cached images."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
//
// When invoked under a symlinked name, the binary acts as that manifest
// command directly and no flags are parsed.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if invokedAs := filepath.Base(os.Args[0]); invokedAs != internal.Name {
		configureLogger()
		return invokeAlias(ctx, invokedAs, os.Args[1:])
	}

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Reproducible build environments.\n\nBuilds container images from a declarative manifest and runs project commands inside them."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Runs a manifest command under its symlinked name.
func invokeAlias(ctx context.Context, name string, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	code, err := eng.dispatcher.Invoke(ctx, name, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
