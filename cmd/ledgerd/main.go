// Command ledgerd is the entry point of the market ledger. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode. Its sub-commands help
// oracle operators sign resolutions and protect their keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/alanyoungcy/marketledger/internal/app"
	"github.com/alanyoungcy/marketledger/internal/config"
)

type options struct {
	Config string `short:"c" long:"config" env:"LEDGER_CONFIG" default:"config.toml" description:"path to configuration file"`
	Mode   string `long:"mode" choice:"api" choice:"worker" choice:"full" description:"override the configured mode"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.AddCommand("sign-resolution",
		"Sign a market resolution",
		"Prints the oracle signature for the X-Oracle-Signature header.",
		&signCommand{opts: &opts}); err != nil {
		panic(err)
	}
	if _, err := parser.AddCommand("encrypt-key",
		"Encrypt an oracle private key",
		"Writes the key read from LEDGER_ORACLE_PRIVATE_KEY to an encrypted key file.",
		&encryptKeyCommand{}); err != nil {
		panic(err)
	}

	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if parser.Active != nil {
		// A sub-command already ran.
		return
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	// Setup structured JSON logger.
	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", opts.Config),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("market ledger starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", opts.Config),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	logger.Info("market ledger stopped")
	return 0
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
