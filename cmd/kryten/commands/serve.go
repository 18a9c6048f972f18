package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kryten-bot/kryten/pkg/kryten/bot"
	"github.com/kryten-bot/kryten/pkg/kryten/channels/telegram"
	"github.com/kryten-bot/kryten/pkg/kryten/llm"
	"github.com/kryten-bot/kryten/pkg/kryten/store"
)

// newServeCmd creates the `kryten serve` command that starts the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot and poll Telegram for messages",
		Long: `Start Kryten as a long-running service: connect to Telegram,
poll for messages, and answer via the Anthropic Messages API.

Examples:
  kryten serve
  kryten serve --config ./kryten.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := bot.LoadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tg := telegram.New(cfg.Telegram, logger)
	if err := tg.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}

	client := llm.NewClient(cfg.LLMConfig(), cfg.Anthropic.Model, logger)
	gate := bot.NewAccessGate(st, tg, cfg.Access.AdminUserID, cfg.Access.AllowedUsers, logger)
	staging := bot.NewPhotoStaging()
	tools := bot.NewToolExecutor(st, tg, staging, cfg.Anthropic.Model, logger)

	b := bot.New(tg, tg, tg, client, st, gate, tools, staging, bot.Options{
		Model:          cfg.Anthropic.Model,
		PhotosDir:      cfg.Bot.PhotosDir,
		MaxHistory:     cfg.Bot.MaxHistory,
		DedupCapacity:  cfg.Bot.DedupCapacity,
		InputCostPerM:  cfg.Pricing.InputPerMillion,
		OutputCostPerM: cfg.Pricing.OutputPerMillion,
	}, logger)
	b.SetUsernameSource(tg.BotUsername)

	digest := bot.NewDigest(st, tg, cfg.Digest.ChatID, cfg.Digest.Schedule, logger)
	if err := digest.Start(ctx); err != nil {
		logger.Error("failed to start digest", "error", err)
	}

	var runErrVal error
	runDone := make(chan struct{})
	go func() {
		runErrVal = b.Run(ctx)
		close(runDone)
	}()

	logger.Info("Kryten running. Press Ctrl+C to stop.",
		"bot", tg.BotUsername(),
		"model", cfg.Anthropic.Model,
		"admin", cfg.Access.AdminUserID,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping...")
	case <-runDone:
		if runErrVal != nil && ctx.Err() == nil {
			return fmt.Errorf("dispatcher stopped: %w", runErrVal)
		}
	}

	cancel()
	done := make(chan struct{})
	go func() {
		digest.Stop()
		if err := tg.Disconnect(); err != nil {
			logger.Warn("telegram disconnect", "error", err)
		}
		<-runDone
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}
