package finnhub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cleoliu/kairis/internal/httpx"
	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/provider"
	"github.com/cleoliu/kairis/internal/provider/finnhub"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *finnhub.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return finnhub.New(finnhub.Config{BaseURL: srv.URL, APIKey: "tok"}, httpx.New(5*time.Second))
}

func TestQuote(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/quote", r.URL.Path)
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		require.Equal(t, "tok", r.URL.Query().Get("token"))
		w.Write([]byte(`{"c":201.5,"d":1.5,"dp":0.75,"h":203,"l":199.5,"o":200.2,"pc":200,"t":1749153000}`))
	})

	q, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.InDelta(t, 201.5, q.Price, 1e-9)
	require.InDelta(t, 1.5, q.Change, 1e-9)
	require.InDelta(t, 0.75, q.ChangePercent, 1e-9)
	require.InDelta(t, 203.0, q.DayHigh, 1e-9)
	require.InDelta(t, 199.5, q.DayLow, 1e-9)
}

func TestQuote_ZeroBodyIsNoData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	})
	_, err := p.Quote(context.Background(), "NOPE")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindNoData, pe.Kind)
}

func TestQuote_429HonorsRetryAfter(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := p.Quote(context.Background(), "AAPL")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindRateLimited, pe.Kind)
	require.Equal(t, 30*time.Second, pe.RetryAfter)
}

func TestHistory_AlwaysNoData(t *testing.T) {
	p := finnhub.New(finnhub.Config{APIKey: "tok"}, httpx.New(time.Second))
	_, err := p.History(context.Background(), "AAPL", market.TimeframeDaily)
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindNoData, pe.Kind)
}
