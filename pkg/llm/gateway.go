package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
)

// GatewayConfig tunes retry, timeout, and concurrency behavior.
type GatewayConfig struct {
	// CallTimeout is the hard deadline for a single provider call.
	CallTimeout time.Duration
	// MaxRetryElapsed bounds the total time spent retrying one completion.
	MaxRetryElapsed time.Duration
	// MaxInFlight caps concurrent provider calls across all requests.
	MaxInFlight int
	// HistoryTurns caps remembered exchanges per session.
	HistoryTurns int
	// MemoryTTL expires idle session memory.
	MemoryTTL time.Duration
	// SweepInterval is the cadence of the memory janitor.
	SweepInterval time.Duration
	// Temperature and MaxTokens are applied to requests that leave them
	// unset.
	Temperature float64
	MaxTokens   int
}

// Gateway is the single entry point for model completions. It owns the
// concurrency limiter, per-call timeouts, retry policy, fence stripping, and
// per-session conversation memory.
type Gateway struct {
	provider    Completer
	sem         *semaphore.Weighted
	callTimeout time.Duration
	maxElapsed  time.Duration
	temperature float64
	maxTokens   int
	memory      *conversationMemory
	logger      *slog.Logger

	closeOnce sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewGateway wraps a provider. Zero config fields fall back to safe
// defaults. The returned gateway runs a janitor goroutine until Close.
func NewGateway(provider Completer, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 25 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 8
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	g := &Gateway{
		provider:    provider,
		sem:         semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		callTimeout: cfg.CallTimeout,
		maxElapsed:  cfg.MaxRetryElapsed,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		memory:      newConversationMemory(cfg.HistoryTurns, cfg.MemoryTTL),
		logger:      logger,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	go g.janitor(cfg.SweepInterval)
	return g
}

// Close stops the memory janitor. Safe to call more than once.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.stopCh)
		<-g.done
	})
}

func (g *Gateway) janitor(interval time.Duration) {
	defer close(g.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			if removed := g.memory.sweep(); removed > 0 {
				g.logger.Debug("Swept idle conversation memory", "sessions", removed)
			}
		}
	}
}

// Ask sends one completion request through the concurrency limiter with
// retries on transient failures. When sessionID is non-empty, the session's
// remembered turns are prepended to the request and the new exchange is
// recorded afterwards. The response is fence-stripped.
func (g *Gateway) Ask(ctx context.Context, sessionID string, req Request) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", classifyCtxErr(err)
	}
	defer g.sem.Release(1)

	if req.MaxTokens <= 0 {
		req.MaxTokens = g.maxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = g.temperature
	}

	sent := req.Messages
	if sessionID != "" {
		if history := g.memory.history(sessionID); len(history) > 0 {
			merged := make([]Message, 0, len(history)+len(sent))
			merged = append(merged, history...)
			merged = append(merged, sent...)
			req.Messages = merged
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 8 * time.Second
	policy.MaxElapsedTime = g.maxElapsed

	var out string
	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		text, err := g.provider.Complete(callCtx, req)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = text
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("LLM call failed, retrying",
			"attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		g.logger.Error("LLM call failed", "attempts", attempt, "error", err)
		return "", err
	}

	out = StripFences(out)
	if sessionID != "" && len(sent) > 0 {
		last := sent[len(sent)-1]
		g.memory.record(sessionID, last, Message{Role: RoleAssistant, Content: out})
	}
	return out, nil
}

// History returns the remembered turns for a session, newest last.
func (g *Gateway) History(sessionID string) []Message {
	return g.memory.history(sessionID)
}

// AdoptSession moves remembered turns from one session ID to another.
func (g *Gateway) AdoptSession(oldID, newID string) {
	g.memory.adopt(oldID, newID)
}

// DropSession discards a session's remembered turns.
func (g *Gateway) DropSession(sessionID string) {
	g.memory.drop(sessionID)
}

// retryable reports whether another attempt could plausibly succeed.
// Timeouts already consumed the budget and empty completions repeat
// themselves, so only transport and quota failures retry.
func retryable(err error) bool {
	if isPermanent(err) {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrQuota)
}

// permanentError marks a classified failure that retrying cannot fix, such
// as an auth rejection. ErrorCode still sees the underlying sentinel.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
