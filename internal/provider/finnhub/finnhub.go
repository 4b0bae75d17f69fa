// Package finnhub adapts the Finnhub /quote endpoint. Finnhub serves
// quotes only here; historical candles sit behind a paid tier, so the
// adapter reports NoData for history and is configured into the quote
// priority list alone.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cleoliu/kairis/internal/httpx"
	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/provider"
)

type Config struct {
	Name    string // default "finnhub"
	BaseURL string // default "https://finnhub.io"
	APIKey  string
}

type Provider struct {
	cfg    Config
	client httpx.Doer
}

func New(cfg Config, client httpx.Doer) *Provider {
	if cfg.Name == "" {
		cfg.Name = "finnhub"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io"
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return p.cfg.Name }

// quoteResponse mirrors Finnhub's terse field names.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
}

func (p *Provider) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	params := url.Values{"symbol": {symbol}, "token": {p.cfg.APIKey}}
	u := fmt.Sprintf("%s/api/v1/quote?%s", p.cfg.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return market.Quote{}, p.fail(provider.KindHTTP, err)
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return market.Quote{}, p.fail(provider.KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return market.Quote{}, &provider.Error{
			Provider:   p.cfg.Name,
			Kind:       provider.KindRateLimited,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("quote -> 429"),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return market.Quote{}, p.fail(provider.KindHTTP, fmt.Errorf("quote -> %d: %s", resp.StatusCode, b))
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return market.Quote{}, p.fail(provider.KindMalformed, fmt.Errorf("decode quote: %w", err))
	}
	// Finnhub answers 200 with an all-zero body for unknown symbols.
	if body.Current <= 0 {
		return market.Quote{}, p.fail(provider.KindNoData, fmt.Errorf("no quote for %s", symbol))
	}
	return market.Quote{
		DisplayName:   symbol,
		Price:         body.Current,
		Change:        body.Change,
		ChangePercent: body.ChangePercent,
		DayHigh:       body.High,
		DayLow:        body.Low,
	}, nil
}

func (p *Provider) History(_ context.Context, symbol string, _ market.Timeframe) ([]market.Candle, error) {
	return nil, p.fail(provider.KindNoData, fmt.Errorf("history not available for %s", symbol))
}

func (p *Provider) fail(kind provider.ErrorKind, err error) error {
	return &provider.Error{Provider: p.cfg.Name, Kind: kind, Err: err}
}
