// Command smsgwd is the SMS gateway daemon: it drives a GSM modem over a
// serial line, dispatches received messages to built-in or external
// commands on behalf of authenticated users, and accepts local requests
// to send outbound messages via a named pipe or a UNIX-socket HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/psmsgw/smsgwd/internal/config"
	"github.com/psmsgw/smsgwd/internal/daemon"
)

func main() {
	var cliFlags config.Flags
	if _, err := flags.Parse(&cliFlags); err != nil {
		os.Exit(1)
	}

	opts := []config.Option{config.WithEnv(), config.WithFlags(&cliFlags)}
	if cliFlags.ConfigFile != "" {
		opts = append([]config.Option{config.WithINIFile(cliFlags.ConfigFile)}, opts...)
	} else {
		opts = append([]config.Option{config.WithINIFile("/etc/smsgwd/smsgwd.ini")}, opts...)
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Error("initialize daemon", "error", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
