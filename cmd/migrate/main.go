// Command migrate moves a chat's queue, settings and credentials to a new
// chat identifier while the service is stopped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dailypost/internal/config"
	"dailypost/internal/constants"
	"dailypost/internal/queue"
	"dailypost/internal/retry"
	"dailypost/internal/service"
	"dailypost/internal/store"
	"dailypost/internal/validation"
	"dailypost/pkg/telegram"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := flags.String("config", "config.json", "Path to configuration file (JSON or YAML)")
	from := flags.String("from", "", "Chat ID to migrate from")
	to := flags.String("to", "", "Chat ID to migrate to")
	notify := flags.Bool("notify", true, "Tell the new chat about the migration (needs TELEGRAM_TOKEN)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := validation.ValidateChatID(*from); err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	if err := validation.ValidateChatID(*to); err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	config.ApplyLogLevel(logger)(cfg)

	backoffConfig := retry.ConfigFromRetry(cfg.Retry)
	backoffConfig.MaxAttempts = cfg.Store.RetryAttempts
	st, err := store.OpenWithRetry(ctx, cfg.Store, retry.NewBackoff(backoffConfig), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var notifier service.Notifier
	if *notify && cfg.Telegram.Token != "" {
		client := telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.Token, nil, nil, logger)
		notifier = service.NewTextNotifier(client)
	}

	q := queue.NewManager(st, constants.MaxQueueSize, logger)
	migrator := service.NewMigrator(st, q, nil, notifier, retry.NewBackoff(retry.ConfigFromRetry(cfg.Retry)), logger)

	result, err := migrator.Migrate(ctx, *from, *to)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
