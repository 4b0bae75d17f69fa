// Package alphavantage adapts the Alpha Vantage REST API. The free tier is
// severely quota-limited, so it sits behind Yahoo in the priority lists and
// leans on the gate's conservative window.
package alphavantage

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

const defaultBaseURL = "https://www.alphavantage.co"

// throttleCooldown is applied when Alpha Vantage answers with its quota
// payload, which carries no reset time.
const throttleCooldown = time.Hour

// Provider is a client for the Alpha Vantage API.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  httpx.Doer
}

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithName overrides the provider name used in errors and health entries.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

func New(apiKey string, client httpx.Doer, options ...Option) *Provider {
	p := &Provider{name: "alphavantage", baseURL: defaultBaseURL, apiKey: apiKey, client: client}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (p *Provider) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	body, err := p.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}})
	if err != nil {
		return market.Quote{}, err
	}
	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return market.Quote{}, p.fail(provider.KindMalformed, fmt.Errorf("decode global quote: %w", err))
	}
	gq := resp.GlobalQuote
	if gq.Price == "" {
		return market.Quote{}, p.fail(provider.KindNoData, fmt.Errorf("empty global quote for %s", symbol))
	}
	price, err := strconv.ParseFloat(gq.Price, 64)
	if err != nil {
		return market.Quote{}, p.fail(provider.KindMalformed, fmt.Errorf("price %q: %w", gq.Price, err))
	}
	q := market.Quote{
		// Alpha Vantage has no company-name field on this endpoint.
		DisplayName: symbol,
		Price:       price,
		Change:      parseFloat(gq.Change),
		DayHigh:     parseFloat(gq.High),
		DayLow:      parseFloat(gq.Low),
	}
	// Change percent arrives as "1.2345%".
	pct := gq.ChangePercent
	if n := len(pct); n > 0 && pct[n-1] == '%' {
		pct = pct[:n-1]
	}
	q.ChangePercent = parseFloat(pct)
	return q, nil
}

type bar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

func (p *Provider) History(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	params := url.Values{"symbol": {symbol}, "outputsize": {"compact"}}
	seriesKey := "Time Series (Daily)"
	if tf == market.TimeframeIntraday {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", "5min")
		seriesKey = "Time Series (5min)"
	} else {
		params.Set("function", "TIME_SERIES_DAILY")
	}

	body, err := p.get(ctx, params)
	if err != nil {
		return nil, err
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, p.fail(provider.KindMalformed, fmt.Errorf("decode series: %w", err))
	}
	raw, ok := resp[seriesKey]
	if !ok {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("no %q for %s", seriesKey, symbol))
	}
	var series map[string]bar
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, p.fail(provider.KindMalformed, fmt.Errorf("decode %q: %w", seriesKey, err))
	}
	if len(series) == 0 {
		return nil, p.fail(provider.KindNoData, fmt.Errorf("empty series for %s", symbol))
	}

	out := make([]market.Candle, 0, len(series))
	for date, b := range series {
		if tf == market.TimeframeIntraday {
			// Intraday stamps are US/Eastern "2006-01-02 15:04:05";
			// normalize to UTC RFC3339 here, once.
			ts, err := time.ParseInLocation("2006-01-02 15:04:05", date, easternTime)
			if err != nil {
				return nil, p.fail(provider.KindMalformed, fmt.Errorf("timestamp %q: %w", date, err))
			}
			date = ts.UTC().Format(time.RFC3339)
		}
		out = append(out, market.Candle{
			Date:   date,
			Open:   parseFloat(b.Open),
			High:   parseFloat(b.High),
			Low:    parseFloat(b.Low),
			Close:  parseFloat(b.Close),
			Volume: parseFloat(b.Volume),
		})
	}
	return out, nil
}

// get performs one API call and maps the throttle payload to RateLimited.
func (p *Provider) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", p.apiKey)
	u := fmt.Sprintf("%s/query?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, p.fail(provider.KindHTTP, err)
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, p.fail(provider.KindHTTP, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.fail(provider.KindHTTP, fmt.Errorf("GET %s -> %d", p.baseURL, resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, p.fail(provider.KindHTTP, fmt.Errorf("read body: %w", err))
	}

	// Quota exhaustion arrives as HTTP 200 with a "Note"/"Information"
	// payload instead of data.
	var note struct {
		Note        string `json:"Note"`
		Information string `json:"Information"`
		ErrMsg      string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &note); err == nil {
		if note.Note != "" || note.Information != "" {
			return nil, &provider.Error{
				Provider:   p.name,
				Kind:       provider.KindRateLimited,
				RetryAfter: throttleCooldown,
				Err:        fmt.Errorf("quota exceeded"),
			}
		}
		if note.ErrMsg != "" {
			return nil, p.fail(provider.KindNoData, fmt.Errorf("api error: %s", note.ErrMsg))
		}
	}
	return body, nil
}

func (p *Provider) fail(kind provider.ErrorKind, err error) error {
	return &provider.Error{Provider: p.name, Kind: kind, Err: err}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var easternTime = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}
