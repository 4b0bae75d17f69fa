package yahoo_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/provider"
	"github.com/cleoliu/kairis/internal/provider/yahoo"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

const chartDaily = `{"chart":{"result":[{
	"meta":{"symbol":"AAPL","shortName":"Apple Inc.","exchangeTimezoneName":"America/New_York",
		"regularMarketPrice":201.5,"chartPreviousClose":200.0,
		"regularMarketDayHigh":203.0,"regularMarketDayLow":199.5},
	"timestamp":[1749153000,1749066600,1749239400],
	"indicators":{"quote":[{
		"open":[100,99,101],"high":[101,100,102],"low":[99,98,100],
		"close":[100.5,99.5,101.5],"volume":[1000,null,2000]
	}]}
}],"error":null}}`

func TestQuote_FromChartMeta(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.Path, "/v8/finance/chart/AAPL")
			require.Equal(t, "1d", req.URL.Query().Get("interval"))
			return jsonResponse(200, chartDaily), nil
		}).
		Times(1)

	p := yahoo.New(yahoo.Config{}, doer)
	q, err := p.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, "Apple Inc.", q.DisplayName)
	require.InDelta(t, 201.5, q.Price, 1e-9)
	require.InDelta(t, 1.5, q.Change, 1e-9)
	require.InDelta(t, 0.75, q.ChangePercent, 1e-9)
	require.InDelta(t, 203.0, q.DayHigh, 1e-9)
	require.InDelta(t, 199.5, q.DayLow, 1e-9)
}

func TestHistory_DailyBarsUseExchangeLocalDates(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(jsonResponse(200, chartDaily), nil).
		Times(1)

	p := yahoo.New(yahoo.Config{}, doer)
	bars, err := p.History(context.Background(), "AAPL", market.TimeframeDaily)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	// 1749066600 = 2025-06-04 16:30 ET, 1749153000 = 06-05, 1749239400 = 06-06.
	// Provider output preserves upstream order; the orchestrator sorts.
	dates := []string{bars[0].Date, bars[1].Date, bars[2].Date}
	require.ElementsMatch(t, []string{"2025-06-04", "2025-06-05", "2025-06-06"}, dates)
	require.Equal(t, 0.0, bars[1].Volume, "null volume normalizes to zero")
}

func TestHistory_IntradayUsesUTCTimestamps(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req *http.Request) (*http.Response, error) {
			require.Equal(t, "5m", req.URL.Query().Get("interval"))
			require.Equal(t, "1d", req.URL.Query().Get("range"))
			return jsonResponse(200, chartDaily), nil
		}).
		Times(1)

	p := yahoo.New(yahoo.Config{}, doer)
	bars, err := p.History(context.Background(), "AAPL", market.TimeframeIntraday)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	ts, err := time.Parse(time.RFC3339, bars[0].Date)
	require.NoError(t, err)
	require.Equal(t, time.UTC, ts.Location())
}

func TestHistory_SkipsAllNullBars(t *testing.T) {
	const holiday = `{"chart":{"result":[{
		"meta":{"regularMarketPrice":1},
		"timestamp":[1749066600,1749153000],
		"indicators":{"quote":[{
			"open":[null,100],"high":[null,101],"low":[null,99],
			"close":[null,100.5],"volume":[null,10]
		}]}
	}],"error":null}}`

	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any(), gomock.Any()).Return(jsonResponse(200, holiday), nil)

	p := yahoo.New(yahoo.Config{}, doer)
	bars, err := p.History(context.Background(), "AAPL", market.TimeframeDaily)
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestFetch_429BecomesRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	resp := jsonResponse(http.StatusTooManyRequests, "slow down")
	resp.Header.Set("Retry-After", "120")
	doer.EXPECT().Do(gomock.Any(), gomock.Any()).Return(resp, nil)

	p := yahoo.New(yahoo.Config{}, doer)
	_, err := p.Quote(context.Background(), "AAPL")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindRateLimited, pe.Kind)
	require.Equal(t, 2*time.Minute, pe.RetryAfter)
}

func TestFetch_ChartErrorBecomesNoData(t *testing.T) {
	const notFound = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any(), gomock.Any()).Return(jsonResponse(200, notFound), nil)

	p := yahoo.New(yahoo.Config{}, doer)
	_, err := p.History(context.Background(), "NOPE", market.TimeframeDaily)
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindNoData, pe.Kind)
}

func TestFetch_GarbageBecomesMalformed(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any(), gomock.Any()).
		Return(jsonResponse(200, strings.Repeat("<", 10)), nil)

	p := yahoo.New(yahoo.Config{}, doer)
	_, err := p.Quote(context.Background(), "AAPL")
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, provider.KindMalformed, pe.Kind)
}
