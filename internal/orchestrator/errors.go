package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// errEmptyResult marks a provider that answered cleanly with nothing usable.
var errEmptyResult = errors.New("empty result")

// gateDeniedError records a provider skipped by the local rate gate.
type gateDeniedError struct{ retryAfter time.Duration }

func (e *gateDeniedError) Error() string {
	return fmt.Sprintf("rate gate denied, retry in %s", e.retryAfter.Round(time.Millisecond))
}

// Attempt is the outcome of one provider in a failed walk, kept for
// diagnostics in the error surfaced to the caller.
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustedError means every configured provider failed or was rate-limited.
// The orchestrator never fabricates placeholder data to mask this; if a
// calling layer wants to degrade, it must do so explicitly.
type ExhaustedError struct {
	Symbol   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers exhausted for %s", e.Symbol)
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Provider, a.Err)
	}
	return b.String()
}

// Details returns the per-provider failure lines for error responses.
func (e *ExhaustedError) Details() []string {
	out := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return out
}

// AsExhausted extracts an *ExhaustedError from an error chain.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
