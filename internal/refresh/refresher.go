// Package refresh keeps a configured watchlist warm in the cache so popular
// symbols never pay the cold-fetch latency across TTL boundaries.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/orchestrator"
)

const perSymbolTimeout = 30 * time.Second

// Refresher re-fetches the watchlist on a cron schedule. Fetches go through
// the orchestrator, so warming respects the same rate gates, coalescing and
// cache writes as client traffic.
type Refresher struct {
	cron    *cron.Cron
	orc     *orchestrator.Orchestrator
	symbols []string
	log     *zap.Logger
}

// New registers the warm task. spec uses the six-field cron form with
// seconds. An empty symbols list yields a no-op refresher.
func New(spec string, symbols []string, orc *orchestrator.Orchestrator, log *zap.Logger) (*Refresher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Refresher{
		cron:    cron.New(cron.WithSeconds()),
		orc:     orc,
		symbols: symbols,
		log:     log,
	}
	if len(symbols) > 0 {
		if _, err := r.cron.AddFunc(spec, r.warmAll); err != nil {
			return nil, fmt.Errorf("register warm task: %w", err)
		}
	}
	return r, nil
}

func (r *Refresher) Start() {
	if len(r.symbols) == 0 {
		return
	}
	r.cron.Start()
	r.log.Info("cache warmer started", zap.Strings("symbols", r.symbols))
}

// Stop halts scheduling; a warm pass already running completes.
func (r *Refresher) Stop() {
	r.cron.Stop()
}

func (r *Refresher) warmAll() {
	for _, raw := range r.symbols {
		symbol, err := market.NormalizeSymbol(raw)
		if err != nil {
			r.log.Warn("skipping unwarmable symbol", zap.String("symbol", raw), zap.Error(err))
			continue
		}
		r.warmOne(symbol)
	}
}

func (r *Refresher) warmOne(symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), perSymbolTimeout)
	defer cancel()

	if _, err := r.orc.Quote(ctx, symbol); err != nil {
		r.log.Warn("warm quote failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if _, err := r.orc.History(ctx, symbol, market.TimeframeDaily); err != nil {
		r.log.Warn("warm history failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
