package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/internal/cli"
)

// The entry point for the kiln tool.
//
// Initializes logging, displays startup information, and executes the root
// command. A dispatched tool's exit code is passed through unchanged; any
// other error exits with code 1.
func main() {
	slog.SetDefault(logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("kiln is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	err := cli.Execute()
	if err == nil {
		return
	}

	var exit *cli.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}

	slog.Error(err.Error())
	os.Exit(1)
}

// Creates a logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()})
	return slog.New(handler)
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
