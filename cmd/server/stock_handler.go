package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/orchestrator"
)

// stockService is what the handlers need from the orchestrator.
type stockService interface {
	Snapshot(ctx context.Context, symbol string, tf market.Timeframe) (market.Snapshot, error)
	Status() orchestrator.Status
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// publicMaxAge lets intermediaries absorb bursts for identical symbols.
const publicMaxAge = "public, max-age=30"

func handleStock(w http.ResponseWriter, r *http.Request, svc stockService, timeout time.Duration) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	rawSymbol := r.URL.Query().Get("symbol")
	if strings.TrimSpace(rawSymbol) == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param", "")
		return
	}
	symbol, err := market.NormalizeSymbol(rawSymbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid symbol", err.Error())
		return
	}
	tf, err := market.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timeframe", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	snap, err := svc.Snapshot(ctx, symbol, tf)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	snap.Symbol = rawSymbolEcho(rawSymbol)

	w.Header().Set("Cache-Control", publicMaxAge)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(snap)
}

// rawSymbolEcho returns the client's spelling, upper-cased, so responses
// match what was asked for ("aapl.us" -> "AAPL.US").
func rawSymbolEcho(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// writeFetchError maps orchestrator failures onto the HTTP taxonomy:
// exhausted chains become 404 with per-provider detail, anything else is
// an internal error.
func writeFetchError(w http.ResponseWriter, err error) {
	if ee, ok := orchestrator.AsExhausted(err); ok {
		writeError(w, http.StatusNotFound, "no data available from any provider",
			strings.Join(ee.Details(), "; "))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "upstream fetch timed out", "")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error", err.Error())
}

func handleStatus(w http.ResponseWriter, r *http.Request, svc stockService) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(svc.Status())
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Details: details})
}
