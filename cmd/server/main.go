package main

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cleoliu/kairis/internal/cache"
	"github.com/cleoliu/kairis/internal/config"
	"github.com/cleoliu/kairis/internal/httpx"
	"github.com/cleoliu/kairis/internal/orchestrator"
	"github.com/cleoliu/kairis/internal/provider"
	"github.com/cleoliu/kairis/internal/provider/alphavantage"
	"github.com/cleoliu/kairis/internal/provider/finnhub"
	"github.com/cleoliu/kairis/internal/provider/yahoo"
	"github.com/cleoliu/kairis/internal/ratelimit"
	"github.com/cleoliu/kairis/internal/refresh"
)

func main() {
	log := newLogger()
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	quoteChain, historyChain, limits := buildProviders(cfg, httpClient, log)
	if len(quoteChain) == 0 {
		log.Fatal("no providers enabled")
	}

	store := buildStore(cfg.Cache, log)
	orc := orchestrator.New(
		orchestrator.Config{QuoteProviders: quoteChain, HistoryProviders: historyChain},
		store,
		cache.NewKeyPolicy(),
		ratelimit.New(limits),
		provider.NewHealthRegistry(),
		log,
	)

	warmer, err := refresh.New(cfg.Warm.Cron, cfg.Warm.Symbols, orc, log)
	if err != nil {
		log.Fatal("refresher", zap.Error(err))
	}
	warmer.Start()
	defer warmer.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/stock", func(w http.ResponseWriter, r *http.Request) {
		handleStock(w, r, orc, timeout)
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(w, r, orc)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(mux, log))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newLogger() *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.TimeKey = "time"
	log, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}

// buildProviders assembles the static priority chains. Yahoo first (fast,
// no key), then Finnhub for quotes, Alpha Vantage as the generous-but-slow
// history fallback and last-resort quote source.
func buildProviders(cfg config.Config, hc *httpx.Client, log *zap.Logger) (quote, history []provider.Provider, limits map[string]ratelimit.Limits) {
	limits = map[string]ratelimit.Limits{}

	if cfg.Yahoo.Enabled {
		y := yahoo.New(yahoo.Config{BaseURL: cfg.Yahoo.BaseURL}, hc)
		quote = append(quote, y)
		history = append(history, y)
		limits[y.Name()] = toLimits(cfg.Yahoo.Limits)
	}
	if cfg.Finnhub.Enabled {
		if cfg.Finnhub.APIKey == "" {
			log.Warn("finnhub enabled but FINNHUB_API_KEY not set; skipping")
		} else {
			f := finnhub.New(finnhub.Config{BaseURL: cfg.Finnhub.BaseURL, APIKey: cfg.Finnhub.APIKey}, hc)
			quote = append(quote, f)
			limits[f.Name()] = toLimits(cfg.Finnhub.Limits)
		}
	}
	if cfg.AlphaVantage.Enabled {
		if cfg.AlphaVantage.APIKey == "" {
			log.Warn("alphavantage enabled but ALPHAVANTAGE_API_KEY not set; skipping")
		} else {
			opts := []alphavantage.Option{}
			if cfg.AlphaVantage.BaseURL != "" {
				opts = append(opts, alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL))
			}
			av := alphavantage.New(cfg.AlphaVantage.APIKey, hc, opts...)
			quote = append(quote, av)
			history = append(history, av)
			limits[av.Name()] = toLimits(cfg.AlphaVantage.Limits)
		}
	}
	return quote, history, limits
}

func toLimits(l config.ProviderLimits) ratelimit.Limits {
	return ratelimit.Limits{
		Window:       time.Duration(l.WindowSec) * time.Second,
		MaxPerWindow: l.MaxPerWindow,
		MinInterval:  time.Duration(l.MinIntervalMS) * time.Millisecond,
	}
}

func buildStore(cfg config.Cache, log *zap.Logger) cache.Store {
	if cfg.Backend == "sqlite" {
		store, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Warn("sqlite cache unavailable, falling back to memory", zap.Error(err))
		} else {
			log.Info("sqlite cache opened", zap.String("path", cfg.SQLitePath))
			return store
		}
	}
	mem := cache.NewMemory()
	mem.MaxItems = cfg.MemoryMaxItems
	return mem
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports it.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
