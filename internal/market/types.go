package market

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects which family of data a request is for.
type Kind string

const (
	KindQuote   Kind = "quote"
	KindHistory Kind = "history"
)

// Timeframe selects the bar resolution for history requests.
type Timeframe string

const (
	TimeframeDaily    Timeframe = "daily"
	TimeframeIntraday Timeframe = "intraday-5m"
)

// ParseTimeframe accepts the wire spellings used by clients.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily", "d":
		return TimeframeDaily, nil
	case "intraday", "intraday-5m", "5m":
		return TimeframeIntraday, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadTimeframe, s)
}

// Candle is one normalized OHLCV bar. Date is an ISO date ("2006-01-02")
// for daily bars and an RFC3339 UTC timestamp for intraday bars; both sort
// lexicographically in chronological order.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Quote is the normalized shape of a near-real-time quote.
type Quote struct {
	DisplayName   string  `json:"displayName"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	DayHigh       float64 `json:"dayHigh"`
	DayLow        float64 `json:"dayLow"`
}

// Valid reports whether the quote carries a usable price.
func (q Quote) Valid() bool { return q.Price > 0 }

// Snapshot is the combined quote + history payload served to clients.
type Snapshot struct {
	Symbol        string   `json:"symbol"`
	DisplayName   string   `json:"displayName"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	DayHigh       float64  `json:"dayHigh"`
	DayLow        float64  `json:"dayLow"`
	History       []Candle `json:"history"`
}

// NormalizeSeries sorts candles ascending by date and collapses duplicate
// dates keeping the last occurrence, regardless of the provider's native
// ordering. The input slice is not modified.
func NormalizeSeries(in []Candle) []Candle {
	if len(in) == 0 {
		return nil
	}
	byDate := make(map[string]Candle, len(in))
	for _, c := range in {
		byDate[c.Date] = c // later entries win
	}
	out := make([]Candle, 0, len(byDate))
	for _, c := range byDate {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
