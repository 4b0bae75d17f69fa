package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cleoliu/kairis/internal/market"
)

// Provider is a single upstream market-data source. Implementations own the
// translation of the provider's native response into the canonical shapes,
// including date/timezone normalization, so nothing downstream ever
// special-cases a provider quirk.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (market.Quote, error)
	History(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error)
}

// ErrorKind classifies a provider failure for the fallback walk.
type ErrorKind string

const (
	// KindRateLimited means the provider signaled throttling (HTTP 429 or a
	// quota payload). RetryAfter carries the provider-supplied reset when
	// one was given.
	KindRateLimited ErrorKind = "rate_limited"
	// KindHTTP covers transport failures, timeouts and non-2xx statuses.
	KindHTTP ErrorKind = "http_error"
	// KindMalformed means the response arrived but could not be decoded.
	KindMalformed ErrorKind = "malformed_response"
	// KindNoData means the provider answered cleanly but has nothing for
	// this symbol/timeframe.
	KindNoData ErrorKind = "no_data"
)

// Error is the typed failure every adapter returns.
type Error struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration // only meaningful for KindRateLimited; 0 means unknown
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
