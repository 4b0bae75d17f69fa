// Command fetch performs a one-shot snapshot fetch and prints the result
// as JSON. Useful for smoke-testing provider credentials and the fallback
// chain without standing up the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cleoliu/kairis/internal/cache"
	"github.com/cleoliu/kairis/internal/config"
	"github.com/cleoliu/kairis/internal/httpx"
	"github.com/cleoliu/kairis/internal/market"
	"github.com/cleoliu/kairis/internal/orchestrator"
	"github.com/cleoliu/kairis/internal/provider"
	"github.com/cleoliu/kairis/internal/provider/alphavantage"
	"github.com/cleoliu/kairis/internal/provider/finnhub"
	"github.com/cleoliu/kairis/internal/provider/yahoo"
	"github.com/cleoliu/kairis/internal/ratelimit"
)

func main() {
	var rawSymbol string
	var rawTimeframe string
	var timeout int
	var configPath string
	var quoteOnly bool

	flag.StringVar(&rawSymbol, "symbol", getenv("SYMBOL", "AAPL"), "stock symbol (US market)")
	flag.StringVar(&rawTimeframe, "timeframe", getenv("TIMEFRAME", "daily"), "history timeframe: daily or intraday")
	flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (0 = from config)")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
	flag.BoolVar(&quoteOnly, "quote-only", false, "fetch the quote without history")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	symbol, err := market.NormalizeSymbol(rawSymbol)
	if err != nil {
		log.Fatalf("symbol %q: %v", rawSymbol, err)
	}
	tf, err := market.ParseTimeframe(rawTimeframe)
	if err != nil {
		log.Fatalf("timeframe %q: %v", rawTimeframe, err)
	}

	reqTimeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	hc := httpx.New(reqTimeout)

	var quoteChain, historyChain []provider.Provider
	limits := map[string]ratelimit.Limits{}
	if cfg.Yahoo.Enabled {
		y := yahoo.New(yahoo.Config{BaseURL: cfg.Yahoo.BaseURL}, hc)
		quoteChain = append(quoteChain, y)
		historyChain = append(historyChain, y)
		limits[y.Name()] = toLimits(cfg.Yahoo.Limits)
	}
	if cfg.Finnhub.Enabled && cfg.Finnhub.APIKey != "" {
		f := finnhub.New(finnhub.Config{BaseURL: cfg.Finnhub.BaseURL, APIKey: cfg.Finnhub.APIKey}, hc)
		quoteChain = append(quoteChain, f)
		limits[f.Name()] = toLimits(cfg.Finnhub.Limits)
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey != "" {
		opts := []alphavantage.Option{}
		if cfg.AlphaVantage.BaseURL != "" {
			opts = append(opts, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
		}
		av := alphavantage.New(cfg.AlphaVantage.APIKey, hc, opts...)
		quoteChain = append(quoteChain, av)
		historyChain = append(historyChain, av)
		limits[av.Name()] = toLimits(cfg.AlphaVantage.Limits)
	}
	if len(quoteChain) == 0 {
		log.Fatal("no providers enabled")
	}

	orc := orchestrator.New(
		orchestrator.Config{QuoteProviders: quoteChain, HistoryProviders: historyChain},
		cache.NewMemory(),
		cache.NewKeyPolicy(),
		ratelimit.New(limits),
		provider.NewHealthRegistry(),
		zap.NewNop(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
	defer cancel()

	var out any
	if quoteOnly {
		out, err = orc.Quote(ctx, symbol)
	} else {
		out, err = orc.Snapshot(ctx, symbol, tf)
	}
	if err != nil {
		if ee, ok := orchestrator.AsExhausted(err); ok {
			fmt.Fprintln(os.Stderr, "all providers failed:")
			for _, d := range ee.Details() {
				fmt.Fprintln(os.Stderr, "  "+d)
			}
			os.Exit(1)
		}
		log.Fatalf("fetch: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
}

func toLimits(l config.ProviderLimits) ratelimit.Limits {
	return ratelimit.Limits{
		Window:       time.Duration(l.WindowSec) * time.Second,
		MaxPerWindow: l.MaxPerWindow,
		MinInterval:  time.Duration(l.MinIntervalMS) * time.Millisecond,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
