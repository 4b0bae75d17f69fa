package cache

import (
	"fmt"
	"time"

	"github.com/cleoliu/kairis/internal/market"
)

const (
	quoteTTLMarketHours = 30 * time.Second
	quoteTTLOffHours    = 5 * time.Minute
	intradayTTL         = time.Hour
	closedDayTTL        = 7 * 24 * time.Hour
	// minDailyTTL keeps a just-before-the-close write from expiring
	// the instant it lands.
	minDailyTTL = time.Minute
)

// KeyPolicy derives cache keys and TTLs from (symbol, kind, timeframe) and
// US market time. It is a pure function of its clock, which is injectable
// for tests.
type KeyPolicy struct {
	now func() time.Time
	loc *time.Location
}

func NewKeyPolicy() *KeyPolicy { return NewKeyPolicyWithClock(time.Now) }

func NewKeyPolicyWithClock(now func() time.Time) *KeyPolicy {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Containers without tzdata: close enough for TTL purposes.
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &KeyPolicy{now: now, loc: loc}
}

// QuoteKey is independent of the date; quotes go stale in seconds during
// market hours and in minutes outside them.
func (p *KeyPolicy) QuoteKey(symbol string) (string, time.Duration) {
	key := fmt.Sprintf("%s:v1:%s", market.KindQuote, symbol)
	if p.marketOpen(p.now().In(p.loc)) {
		return key, quoteTTLMarketHours
	}
	return key, quoteTTLOffHours
}

// HistoryKey embeds the trading day, not the calendar date, so one entry
// serves a whole weekend without re-fetching.
func (p *KeyPolicy) HistoryKey(symbol string, tf market.Timeframe) (string, time.Duration) {
	nowNY := p.now().In(p.loc)
	day := p.TradingDay(nowNY)
	key := fmt.Sprintf("%s:v1:%s:%s:%s", market.KindHistory, symbol, tf, day.Format("2006-01-02"))

	if tf == market.TimeframeIntraday {
		return key, intradayTTL
	}

	// Daily: while today's candle is still forming, cache only until the
	// close; once it has closed the series is stable for days.
	if closeAt, forming := p.nextClose(nowNY); forming {
		ttl := closeAt.Sub(nowNY)
		if ttl < minDailyTTL {
			ttl = minDailyTTL
		}
		return key, ttl
	}
	return key, closedDayTTL
}

// TradingDay resolves t to the most recent day the market was open:
// weekends map to the preceding Friday. Holidays are not modeled.
func (p *KeyPolicy) TradingDay(t time.Time) time.Time {
	t = t.In(p.loc)
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, -2)
	}
	return t
}

// nextClose returns today's 16:00 close and whether it is still ahead of t.
func (p *KeyPolicy) nextClose(t time.Time) (time.Time, bool) {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return time.Time{}, false
	}
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), 16, 0, 0, 0, p.loc)
	return closeAt, t.Before(closeAt)
}

// marketOpen reports whether t falls in regular US trading hours
// (Mon-Fri 09:30-16:00 exchange time).
func (p *KeyPolicy) marketOpen(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	openAt := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, p.loc)
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), 16, 0, 0, 0, p.loc)
	return !t.Before(openAt) && t.Before(closeAt)
}
