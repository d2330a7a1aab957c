package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/config"
	"github.com/Veraticus/receipt-ledger/internal/llm"
	"github.com/Veraticus/receipt-ledger/internal/query"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
	"github.com/Veraticus/receipt-ledger/internal/storage"
)

// databasePath resolves the configured database path.
func databasePath() (string, error) {
	if dbPath := viper.GetString("database.path"); dbPath != "" {
		return config.ExpandPath(dbPath), nil
	}
	return config.DefaultDatabasePath()
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := store.WarmVendorCache(ctx); err != nil {
		slog.Warn("Failed to warm vendor cache", "error", err)
	}

	return store, nil
}

// newValidator builds the reconciliation validator from config.
func newValidator() (*reconcile.Validator, error) {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return nil, err
	}
	return reconcile.NewValidator(cfg.Tolerance), nil
}

// newEngine wires the query engine, with the model path when it is enabled.
// The returned func releases the model client's background workers.
func newEngine(store *storage.SQLiteStorage) (*query.Engine, func(), error) {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := query.Options{
		Currency:       cfg.Currency,
		DisableChatLog: !cfg.ChatLog,
	}
	cleanup := func() {}

	if config.LLMEnabled() {
		llmCfg, err := config.LoadLLMConfig()
		if err != nil {
			return nil, nil, common.NewUserError("language model is enabled but not configured", err)
		}
		client, err := llm.NewClient(llmCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s client: %w", llmCfg.Provider, err)
		}
		assistant := llm.NewAssistant(client, llmCfg, slog.Default())
		opts.Assistant = assistant
		cleanup = assistant.Close

		slog.Debug("Language model enabled", "provider", llmCfg.Provider, "model", llmCfg.Model)
	}

	return query.NewEngine(store, opts), cleanup, nil
}

func currency() string {
	cfg, err := config.LoadEngineConfig()
	if err != nil {
		return query.DefaultCurrency
	}
	return cfg.Currency
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid receipt id %q", s), errors.New("must be a positive number"))
	}
	return id, nil
}

// notFound turns a storage miss into a message for the user.
func notFound(err error, id int64) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError(fmt.Sprintf("receipt #%d not found", id), err)
	}
	return err
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute") + " ago"
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour") + " ago"
	case duration < 48*time.Hour:
		return "yesterday"
	case duration < 7*24*time.Hour:
		return plural(int(duration.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
