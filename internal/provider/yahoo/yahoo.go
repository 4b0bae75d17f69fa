// Package yahoo adapts the Yahoo Finance v8 chart API. It serves both
// quotes (from the chart meta block) and history, needs no API key, and is
// therefore first in both priority lists.
package yahoo

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
	Name    string // default "yahoo"
	BaseURL string // default "https://query1.finance.yahoo.com"
}

type Provider struct {
	cfg    Config
	client httpx.Doer
}

func New(cfg Config, client httpx.Doer) *Provider {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	res, err := p.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return market.Quote{}, err
	}
	meta := res.Meta
	if meta.RegularMarketPrice <= 0 {
		return market.Quote{}, p.fail(provider.KindNoData, fmt.Errorf("no market price for %s", symbol))
	}
	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	if name == "" {
		name = symbol
	}
	q := market.Quote{
		DisplayName: name,
		Price:       meta.RegularMarketPrice,
		DayHigh:     meta.RegularMarketDayHigh,
		DayLow:      meta.RegularMarketDayLow,
	}
	if meta.ChartPreviousClose > 0 {
		q.Change = meta.RegularMarketPrice - meta.ChartPreviousClose
		q.ChangePercent = q.Change / meta.ChartPreviousClose * 100
	}
	return q, nil
}

func (p *Provider) History(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	interval, rng := "1d", "1y"
	if tf == market.TimeframeIntraday {
		interval, rng = "5m", "1d"
	}
	res, err := p.fetchChart(ctx, symbol, interval, rng)
	if err != nil {
		return nil, err
	}
	if len(res.Timestamp) == 0 || len(res.Indicators.Quote) == 0 {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("no bars for %s", symbol))
	}

	// Daily bars are keyed by the exchange-local date; intraday bars keep
	// the full UTC timestamp.
	loc := time.UTC
	if tf == market.TimeframeDaily && res.Meta.ExchangeTimezoneName != "" {
		if l, err := time.LoadLocation(res.Meta.ExchangeTimezoneName); err == nil {
			loc = l
		}
	}

	bars := res.Indicators.Quote[0]
	out := make([]market.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, l, c := deref(bars.Open, i), deref(bars.High, i), deref(bars.Low, i), deref(bars.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bar (holiday, halted session)
		}
		var date string
		if tf == market.TimeframeIntraday {
			date = time.Unix(ts, 0).UTC().Format(time.RFC3339)
		} else {
			date = time.Unix(ts, 0).In(loc).Format("2006-01-02")
		}
		out = append(out, market.Candle{
			Date: date, Open: o, High: h, Low: l, Close: c,
			Volume: deref(bars.Volume, i),
		})
	}
	if len(out) == 0 {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("only null bars for %s", symbol))
	}
	return out, nil
}

type chartResult struct {
	Meta struct {
		Symbol               string  `json:"symbol"`
		ShortName            string  `json:"shortName"`
		LongName             string  `json:"longName"`
		ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
		RegularMarketPrice   float64 `json:"regularMarketPrice"`
		ChartPreviousClose   float64 `json:"chartPreviousClose"`
		RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
		RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) fetchChart(ctx context.Context, symbol, interval, rng string) (*chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		p.cfg.BaseURL, url.PathEscape(symbol), interval, rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, p.fail(provider.KindHTTP, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, p.fail(provider.KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &provider.Error{
			Provider:   p.cfg.Name,
			Kind:       provider.KindRateLimited,
			RetryAfter: retryAfter(resp),
			Err:        fmt.Errorf("GET %s -> 429", u),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, p.fail(provider.KindHTTP, fmt.Errorf("GET %s -> %d: %s", u, resp.StatusCode, b))
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, p.fail(provider.KindMalformed, fmt.Errorf("decode chart: %w", err))
	}
	if body.Chart.Error != nil {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("chart error: %s", body.Chart.Error.Description))
	}
	if len(body.Chart.Result) == 0 {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("empty chart result for %s", symbol))
	}
	return &body.Chart.Result[0], nil
}

func (p *Provider) fail(kind provider.ErrorKind, err error) error {
	return &provider.Error{Provider: p.cfg.Name, Kind: kind, Err: err}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func deref(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}
