package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/model"
)

// Assistant is the model-backed path of the query engine. Every call is a
// single attempt bounded by the configured timeout; callers are expected to
// fall back to the rule-based path on any error.
type Assistant struct {
	client  Client
	cache   *responseCache
	limiter *rateLimiter
	logger  *slog.Logger
	timeout time.Duration
}

// NewAssistant wraps client with caching, rate limiting and a per-call timeout.
func NewAssistant(client Client, cfg Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Assistant{
		client:  client,
		cache:   newResponseCache(cfg.CacheTTL),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
		timeout: timeout,
	}
}

// GenerateSQL asks the model for a read-only query answering question.
// The reply must start with SELECT after code fences are stripped, otherwise
// ErrNotSelect is returned. Accepted queries are cached per question.
func (a *Assistant) GenerateSQL(ctx context.Context, question string) (string, error) {
	key := cacheKey(question)
	if query, ok := a.cache.get(key); ok {
		a.logger.Debug("Using cached query", "question", key)
		return query, nil
	}

	reply, err := a.complete(ctx, buildSQLPrompt(question), sqlSystemPrompt)
	if err != nil {
		return "", err
	}

	query, err := extractSelect(reply)
	if err != nil {
		a.logger.Warn("Model reply rejected", "question", key, "error", err)
		return "", err
	}

	a.cache.set(key, query)
	return query, nil
}

// Summarize asks the model to describe rows in prose. Only the first
// SummaryRowLimit rows are sent.
func (a *Assistant) Summarize(ctx context.Context, question, query string, rows []model.Row) (string, error) {
	prompt, err := buildSummaryPrompt(question, query, rows)
	if err != nil {
		return "", err
	}

	reply, err := a.complete(ctx, prompt, summarySystemPrompt)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty summary", common.ErrModelUnavailable)
	}
	return reply, nil
}

func (a *Assistant) complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if !a.limiter.tryAcquire() {
		return "", common.ErrRateLimit
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.client.Complete(ctx, prompt, systemPrompt)
	if err != nil {
		a.logger.Warn("Model call failed", "error", err, "elapsed", time.Since(start))
		return "", err
	}

	a.logger.Debug("Model call complete", "elapsed", time.Since(start), "reply_bytes", len(reply))
	return reply, nil
}

// Close stops the cache's eviction goroutine.
func (a *Assistant) Close() {
	a.cache.Close()
}
