// Package config loads service configuration from a YAML file, then applies
// environment overrides so secrets stay out of the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

// ProviderLimits is the local request budget for one provider credential.
type ProviderLimits struct {
	WindowSec     int `yaml:"window_sec"`
	MaxPerWindow  int `yaml:"max_per_window"`
	MinIntervalMS int `yaml:"min_interval_ms"`
}

type Yahoo struct {
	Enabled bool           `yaml:"enabled"`
	BaseURL string         `yaml:"base_url"`
	Limits  ProviderLimits `yaml:"limits"`
}

type AlphaVantage struct {
	Enabled bool           `yaml:"enabled"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Limits  ProviderLimits `yaml:"limits"`
}

type Finnhub struct {
	Enabled bool           `yaml:"enabled"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Limits  ProviderLimits `yaml:"limits"`
}

type Cache struct {
	// Backend is "memory" or "sqlite".
	Backend        string `yaml:"backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	MemoryMaxItems int    `yaml:"memory_max_items"`
}

// Warm configures the optional cron-driven cache warmer. An empty symbol
// list disables it.
type Warm struct {
	Cron    string   `yaml:"cron"`
	Symbols []string `yaml:"symbols"`
}

type Config struct {
	Server       Server       `yaml:"server"`
	Yahoo        Yahoo        `yaml:"yahoo"`
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
	Finnhub      Finnhub      `yaml:"finnhub"`
	Cache        Cache        `yaml:"cache"`
	Warm         Warm         `yaml:"warm"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Yahoo: Yahoo{
			Enabled: true,
			// Yahoo tolerates a fair volume but has no published contract;
			// stay conservative.
			Limits: ProviderLimits{WindowSec: 60, MaxPerWindow: 60, MinIntervalMS: 200},
		},
		AlphaVantage: AlphaVantage{
			Enabled: true,
			// Free tier: 25 requests/day, so the window must be stingy.
			Limits: ProviderLimits{WindowSec: 3600, MaxPerWindow: 5, MinIntervalMS: 15000},
		},
		Finnhub: Finnhub{
			Enabled: true,
			Limits:  ProviderLimits{WindowSec: 60, MaxPerWindow: 30, MinIntervalMS: 1000},
		},
		Cache: Cache{Backend: "memory", MemoryMaxItems: 10000, SQLitePath: "kairis-cache.db"},
		Warm:  Warm{Cron: "0 */10 9-16 * * 1-5"},
	}
}

// Load reads YAML config from path. An empty path falls back to
// config.yaml if present; a missing file means defaults. Environment
// variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Cache.SQLitePath = v
	}
	if v := os.Getenv("WARM_SYMBOLS"); v != "" {
		cfg.Warm.Symbols = splitCSV(v)
	}
	if v := os.Getenv("WARM_CRON"); v != "" {
		cfg.Warm.Cron = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
