package market

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySymbol       = errors.New("empty symbol")
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrBadTimeframe      = errors.New("unsupported timeframe")
)

// NormalizeSymbol strips the exchange suffix from a client-facing symbol
// ("AAPL.US" -> "AAPL") and upper-cases it. Only the US market is supported;
// any other suffix is rejected so the caller can answer 400 instead of
// handing providers a ticker they will silently misinterpret.
func NormalizeSymbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmptySymbol
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		suffix := s[i+1:]
		if suffix != "US" {
			return "", fmt.Errorf("%w: .%s", ErrUnsupportedMarket, suffix)
		}
		s = s[:i]
	}
	if s == "" {
		return "", ErrEmptySymbol
	}
	return s, nil
}
