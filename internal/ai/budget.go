package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/p-n-ai/tutor-bot/internal/platform/cache"
)

// ErrBudgetExceeded is returned when a user has spent their daily token budget.
var ErrBudgetExceeded = errors.New("daily token budget exceeded")

// BudgetChecker checks and records per-user daily token usage.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID int64) (bool, error)
	// Record adds token usage for the user to today's total.
	Record(ctx context.Context, userID int64, tokens int) error
	// Usage returns today's usage and the applicable limit. A limit of 0 means unlimited.
	Usage(ctx context.Context, userID int64) (used int64, limit int64, err error)
}

// InMemoryBudget tracks usage in process memory. Counters reset at UTC midnight.
type InMemoryBudget struct {
	mu    sync.RWMutex
	limit int64
	usage map[string]int64
	now   func() time.Time
}

// NewInMemoryBudget creates a tracker with a default daily limit per user.
// A limit of 0 disables the budget.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit: dailyLimit,
		usage: make(map[string]int64),
		now:   time.Now,
	}
}

func (b *InMemoryBudget) Check(ctx context.Context, userID int64) (bool, error) {
	used, limit, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return limit <= 0 || used < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID int64, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[dayKey(b.now(), userID)] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID int64) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[dayKey(b.now(), userID)], b.limit, nil
}

// RedisBudget keeps daily counters in Redis so usage is shared across
// instances. Keys expire two days after creation.
type RedisBudget struct {
	cache *cache.Cache
	limit int64
	now   func() time.Time
}

// NewRedisBudget creates a Redis-backed tracker with a daily per-user limit.
func NewRedisBudget(c *cache.Cache, dailyLimit int64) *RedisBudget {
	return &RedisBudget{cache: c, limit: dailyLimit, now: time.Now}
}

func (b *RedisBudget) Check(ctx context.Context, userID int64) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID int64, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	key := b.key(userID)
	pipe := b.cache.Client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID int64) (int64, int64, error) {
	raw, err := b.cache.Client.Get(ctx, b.key(userID)).Result()
	if cache.IsMiss(err) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading token usage: %w", err)
	}
	used, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing token usage %q: %w", raw, err)
	}
	return used, b.limit, nil
}

func (b *RedisBudget) key(userID int64) string {
	return cache.Key("budget", b.now().UTC().Format("20060102"), strconv.FormatInt(userID, 10))
}

func dayKey(t time.Time, userID int64) string {
	return t.UTC().Format("20060102") + ":" + strconv.FormatInt(userID, 10)
}

type userIDKey struct{}

// WithUserID tags ctx with the user an AI request is made for, so a
// BudgetedProvider can charge it.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user set by WithUserID.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// BudgetedProvider enforces a BudgetChecker around another Provider. Requests
// without a user in the context are not charged.
type BudgetedProvider struct {
	Provider
	budget BudgetChecker
}

// NewBudgetedProvider wraps p with budget enforcement.
func NewBudgetedProvider(p Provider, budget BudgetChecker) *BudgetedProvider {
	return &BudgetedProvider{Provider: p, budget: budget}
}

func (p *BudgetedProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return p.Provider.Complete(ctx, req)
	}

	allowed, err := p.budget.Check(ctx, userID)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("checking budget: %w", err)
	}
	if !allowed {
		return CompletionResponse{}, ErrBudgetExceeded
	}

	resp, err := p.Provider.Complete(ctx, req)
	if err != nil {
		return CompletionResponse{}, err
	}
	if err := p.budget.Record(ctx, userID, resp.TotalTokens()); err != nil {
		slog.Warn("failed to record token usage", "user_id", userID, "error", err)
	}
	return resp, nil
}
