// Package orchestrator coordinates cache-aside retrieval across the
// configured provider chains: cache check, in-process request coalescing,
// rate-gated fallback walk, first-success cache write.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cleoliu/kairis/internal/cache"
	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/provider"
	"github.com/cleoliu/kairis/internal/ratelimit"
)

const (
	defaultProviderTimeout = 8 * time.Second
	// defaultGateRetryWait bounds the single wait-and-retry granted to the
	// last provider in a walk when the gate denies it.
	defaultGateRetryWait = 2 * time.Second
	// defaultCooldown applies when a provider signals throttling without a
	// reset time.
	defaultCooldown = time.Hour
)

// Config carries the static provider priority lists. Order is priority;
// health history never reorders it, since failures are usually transient.
type Config struct {
	QuoteProviders   []provider.Provider
	HistoryProviders []provider.Provider
	ProviderTimeout  time.Duration
	GateRetryWait    time.Duration
}

type Orchestrator struct {
	cfg    Config
	store  cache.Store
	keys   *cache.KeyPolicy
	gate   *ratelimit.Gate
	health *provider.HealthRegistry
	log    *zap.Logger

	// sf guarantees at most one upstream fetch per cache key in flight
	// within this process; entries are forgotten when the call settles,
	// success or failure. Cross-process deduplication is the store's job.
	sf    singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, store cache.Store, keys *cache.KeyPolicy, gate *ratelimit.Gate, health *provider.HealthRegistry, log *zap.Logger) *Orchestrator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.GateRetryWait <= 0 {
		cfg.GateRetryWait = defaultGateRetryWait
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		keys:   keys,
		gate:   gate,
		health: health,
		log:    log,
		sleep:  sleepCtx,
	}
}

// Quote returns the near-real-time quote for a normalized symbol.
func (o *Orchestrator) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	key, ttl := o.keys.QuoteKey(symbol)
	if b, ok := o.cacheGet(ctx, key); ok {
		var q market.Quote
		if err := json.Unmarshal(b, &q); err == nil {
			return q, nil
		}
		o.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	return coalesce(o, ctx, key, func(fctx context.Context) (market.Quote, error) {
		q, err := walk(o, fctx, symbol, o.cfg.QuoteProviders,
			market.Quote.Valid,
			func(cctx context.Context, p provider.Provider) (market.Quote, error) {
				return p.Quote(cctx, symbol)
			})
		if err != nil {
			return market.Quote{}, err
		}
		o.cacheSet(fctx, key, q, ttl)
		return q, nil
	})
}

// History returns the normalized candle series for a normalized symbol:
// ascending by date, duplicate dates collapsed keeping the last.
func (o *Orchestrator) History(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	key, ttl := o.keys.HistoryKey(symbol, tf)
	if b, ok := o.cacheGet(ctx, key); ok {
		var series []market.Candle
		if err := json.Unmarshal(b, &series); err == nil && len(series) > 0 {
			return series, nil
		}
		o.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	return coalesce(o, ctx, key, func(fctx context.Context) ([]market.Candle, error) {
		series, err := walk(o, fctx, symbol, o.cfg.HistoryProviders,
			func(s []market.Candle) bool { return len(s) > 0 },
			func(cctx context.Context, p provider.Provider) ([]market.Candle, error) {
				return p.History(cctx, symbol, tf)
			})
		if err != nil {
			return nil, err
		}
		series = market.NormalizeSeries(series)
		o.cacheSet(fctx, key, series, ttl)
		return series, nil
	})
}

// Snapshot combines quote and history for the HTTP surface. A missing half
// fails the whole snapshot with a distinguishable error instead of being
// silently omitted.
func (o *Orchestrator) Snapshot(ctx context.Context, symbol string, tf market.Timeframe) (market.Snapshot, error) {
	q, err := o.Quote(ctx, symbol)
	if err != nil {
		return market.Snapshot{}, err
	}
	history, err := o.History(ctx, symbol, tf)
	if err != nil {
		return market.Snapshot{}, err
	}
	return market.Snapshot{
		Symbol:        symbol,
		DisplayName:   q.DisplayName,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		DayHigh:       q.DayHigh,
		DayLow:        q.DayLow,
		History:       history,
	}, nil
}

// Status is the read-only diagnostic view: last per-provider outcome plus
// current rate-window occupancy. Operators consume it; the walk never does.
type Status struct {
	Providers []provider.Health     `json:"providers"`
	Windows   []ratelimit.Occupancy `json:"windows"`
}

func (o *Orchestrator) Status() Status {
	st := Status{Providers: o.health.Snapshot()}
	seen := map[string]bool{}
	for _, chain := range [][]provider.Provider{o.cfg.QuoteProviders, o.cfg.HistoryProviders} {
		for _, p := range chain {
			if seen[p.Name()] {
				continue
			}
			seen[p.Name()] = true
			st.Windows = append(st.Windows, o.gate.Occupancy(p.Name()))
		}
	}
	return st
}

// coalesce collapses concurrent identical fetches into one upstream call;
// every waiter receives the same result or the same error. The fetch runs
// on a context detached from the first caller's cancellation because other
// waiters may depend on it.
func coalesce[T any](o *Orchestrator, ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	fctx := context.WithoutCancel(ctx)
	// singleflight drops the key when the call settles, success or failure,
	// so a failed fetch never wedges later requests behind a dead entry.
	v, err, _ := o.sf.Do(key, func() (any, error) {
		return fetch(fctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// walk tries the chain in priority order and returns the first valid
// result. Gate-denied providers are skipped, except the last one, which
// gets a single bounded wait-and-retry before giving up.
func walk[T any](o *Orchestrator, ctx context.Context, symbol string, chain []provider.Provider, valid func(T) bool, call func(context.Context, provider.Provider) (T, error)) (T, error) {
	var zero T
	attempts := make([]Attempt, 0, len(chain))

	for i, p := range chain {
		name := p.Name()
		allowed, wait := o.gate.Allow(name)
		if !allowed && i == len(chain)-1 && wait <= o.cfg.GateRetryWait {
			if err := o.sleep(ctx, wait); err == nil {
				allowed, wait = o.gate.Allow(name)
			}
		}
		if !allowed {
			o.log.Debug("provider skipped by rate gate",
				zap.String("provider", name), zap.Duration("retryAfter", wait))
			attempts = append(attempts, Attempt{Provider: name, Err: &gateDeniedError{retryAfter: wait}})
			continue
		}

		o.gate.Record(name)
		cctx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		res, err := call(cctx, p)
		cancel()
		o.health.Report(name, err)

		if err != nil {
			if pe, ok := provider.AsError(err); ok && pe.Kind == provider.KindRateLimited {
				ra := pe.RetryAfter
				if ra <= 0 {
					ra = defaultCooldown
				}
				o.gate.Cooldown(name, time.Now().Add(ra))
			}
			o.log.Warn("provider attempt failed",
				zap.String("provider", name), zap.String("symbol", symbol), zap.Error(err))
			attempts = append(attempts, Attempt{Provider: name, Err: err})
			continue
		}
		if !valid(res) {
			attempts = append(attempts, Attempt{Provider: name, Err: errEmptyResult})
			continue
		}
		return res, nil
	}
	return zero, &ExhaustedError{Symbol: symbol, Attempts: attempts}
}

// cacheGet treats any store failure as a miss; the cache is never a source
// of truth.
func (o *Orchestrator) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := o.store.Get(ctx, key)
	if err != nil {
		o.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return b, ok
}

// cacheSet swallows write failures after logging them.
func (o *Orchestrator) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		o.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := o.store.Set(ctx, key, b, ttl); err != nil {
		o.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
