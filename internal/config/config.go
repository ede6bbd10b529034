package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Run struct {
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	LogFormat         string `json:"log_format"`
	LogLevel          string `json:"log_level"`
	State             State  `json:"state"`
}

// State selects where the three state records live.
type State struct {
	Backend     string `json:"backend"` // file | memory | redis
	Dir         string `json:"dir"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`
}

type Spot struct {
	APIKeys            []string `json:"api_keys"`
	Endpoint           string   `json:"endpoint"`
	Metal              string   `json:"metal"`
	Currency           string   `json:"currency"`
	FreshnessWindowSec int      `json:"freshness_window_sec"`
	MonthlyLimit       int      `json:"monthly_limit"`
	// Headers are added to every spot request, e.g. for a gateway in
	// front of the provider.
	Headers map[string]string `json:"headers"`
}

type Deal struct {
	Policy     string          `json:"policy"` // threshold | all
	MaxPremium decimal.Decimal `json:"max_premium"`
	HardCap    decimal.Decimal `json:"hard_cap"`
}

type Telegram struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
	Endpoint string `json:"endpoint"`
}

type Dashboard struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

type Notify struct {
	Sink      string    `json:"sink"` // telegram | dashboard
	Telegram  Telegram  `json:"telegram"`
	Dashboard Dashboard `json:"dashboard"`
}

// Gist mirrors state for the chat bot worker; disabled unless both token
// and id are set.
type Gist struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
}

type Sources struct {
	Enabled        []string          `json:"enabled"`
	URLs           map[string]string `json:"urls"`
	MaxConcurrency int               `json:"max_concurrency"`
	MinIntervalSec int               `json:"min_interval_sec"`
	MaxRPM         int               `json:"max_requests_per_minute"`
	Burst          int               `json:"burst"`
}

type Config struct {
	Run     Run     `json:"run"`
	Spot    Spot    `json:"spot"`
	Deal    Deal    `json:"deal"`
	Notify  Notify  `json:"notify"`
	Gist    Gist    `json:"gist"`
	Sources Sources `json:"sources"`
}

func Default() Config {
	return Config{
		Run: Run{
			RequestTimeoutSec: 15,
			LogFormat:         "json",
			LogLevel:          "info",
			State:             State{Backend: "file", Dir: ".", RedisPrefix: "silverscout:"},
		},
		Spot: Spot{
			Endpoint:           "https://www.goldapi.io",
			Metal:              "XAG",
			Currency:           "EUR",
			FreshnessWindowSec: 3 * 60 * 60,
			MonthlyLimit:       100,
		},
		Deal: Deal{
			Policy:     "threshold",
			MaxPremium: decimal.NewFromInt(15),
			HardCap:    decimal.NewFromInt(2500),
		},
		Notify: Notify{Sink: "telegram"},
		Sources: Sources{
			Enabled:        []string{"goldsilver_be", "argentorshop_be", "hollandgold_nl"},
			MaxConcurrency: 3,
			MinIntervalSec: 5,
			Burst:          1,
		},
	}
}

// Load reads JSON config from path. If path is empty it falls back to
// CONFIG_FILE, then to config.json when present. A .env file in the
// working directory is loaded first; real environment variables win over
// it, and both override the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SILVER_API_KEYS"); v != "" {
		cfg.Spot.APIKeys = splitCSV(v)
	}
	// The two single-key variables take priority, in order.
	var single []string
	for _, name := range []string{"SILVER_API_KEY", "SILVER_API_KEY_2"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			single = append(single, v)
		}
	}
	if len(single) > 0 {
		cfg.Spot.APIKeys = dedup(append(single, cfg.Spot.APIKeys...))
	}

	setString(&cfg.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Notify.Dashboard.URL, "SILVERSTACK_URL")
	setString(&cfg.Notify.Dashboard.APIKey, "SILVERSTACK_API_KEY")
	setString(&cfg.Notify.Sink, "NOTIFY_SINK")
	setString(&cfg.Gist.Token, "GITHUB_TOKEN")
	setString(&cfg.Gist.ID, "GIST_ID")
	setString(&cfg.Run.State.Backend, "STATE_BACKEND")
	setString(&cfg.Run.State.Dir, "STATE_DIR")
	setString(&cfg.Run.State.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Run.LogFormat, "LOG_FORMAT")
	setString(&cfg.Run.LogLevel, "LOG_LEVEL")
	setString(&cfg.Deal.Policy, "DEAL_POLICY")
	if v := os.Getenv("SOURCES"); v != "" {
		cfg.Sources.Enabled = splitCSV(v)
	}

	for _, d := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"MAX_PREMIUM", &cfg.Deal.MaxPremium},
		{"HARD_CAP", &cfg.Deal.HardCap},
	} {
		if v := os.Getenv(d.name); v != "" {
			x, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = x
		}
	}

	for _, n := range []struct {
		name string
		dst  *int
		min  int
	}{
		{"MONTHLY_API_LIMIT", &cfg.Spot.MonthlyLimit, 1},
		{"SPOT_FRESHNESS_SEC", &cfg.Spot.FreshnessWindowSec, 0},
		{"REQUEST_TIMEOUT_SEC", &cfg.Run.RequestTimeoutSec, 1},
		{"SOURCES_MAX_CONCURRENCY", &cfg.Sources.MaxConcurrency, 1},
		{"SOURCES_MIN_INTERVAL_SEC", &cfg.Sources.MinIntervalSec, 0},
		{"SOURCES_MAX_RPM", &cfg.Sources.MaxRPM, 0},
		{"SOURCES_BURST", &cfg.Sources.Burst, 1},
	} {
		if v := os.Getenv(n.name); v != "" {
			x, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || x < n.min {
				return fmt.Errorf("%s: want an integer >= %d, got %q", n.name, n.min, v)
			}
			*n.dst = x
		}
	}
	return nil
}

// Validate rejects option values no component understands. Missing
// credentials are reported separately by Missing.
func (c Config) Validate() error {
	switch c.Run.State.Backend {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("unknown state backend %q", c.Run.State.Backend)
	}
	if c.Run.State.Backend == "redis" && c.Run.State.RedisAddr == "" {
		return errors.New("state backend redis needs REDIS_ADDR")
	}
	switch c.Notify.Sink {
	case "telegram", "dashboard":
	default:
		return fmt.Errorf("unknown notify sink %q", c.Notify.Sink)
	}
	switch c.Deal.Policy {
	case "threshold", "all":
	default:
		return fmt.Errorf("unknown deal policy %q", c.Deal.Policy)
	}
	if c.Deal.MaxPremium.IsNegative() || !c.Deal.HardCap.IsPositive() {
		return errors.New("max_premium must be >= 0 and hard_cap > 0")
	}
	return nil
}

// NeedsSpot reports whether the configured policy compares against spot.
func (c Config) NeedsSpot() bool { return c.Deal.Policy != "all" }

// Missing lists the environment variables of required credentials that
// are not set.
func (c Config) Missing() []string {
	var out []string
	if c.NeedsSpot() && len(c.Spot.APIKeys) == 0 {
		out = append(out, "SILVER_API_KEY")
	}
	switch c.Notify.Sink {
	case "telegram":
		if c.Notify.Telegram.BotToken == "" {
			out = append(out, "TELEGRAM_BOT_TOKEN")
		}
		if c.Notify.Telegram.ChatID == "" {
			out = append(out, "TELEGRAM_CHAT_ID")
		}
	case "dashboard":
		if c.Notify.Dashboard.URL == "" {
			out = append(out, "SILVERSTACK_URL")
		}
		if c.Notify.Dashboard.APIKey == "" {
			out = append(out, "SILVERSTACK_API_KEY")
		}
	}
	return out
}

// GistEnabled reports whether the state mirror is configured.
func (c Config) GistEnabled() bool { return c.Gist.Token != "" && c.Gist.ID != "" }

func (r Run) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutSec) * time.Second
}

func (s Spot) FreshnessWindow() time.Duration {
	return time.Duration(s.FreshnessWindowSec) * time.Second
}

func (s Sources) MinInterval() time.Duration {
	return time.Duration(s.MinIntervalSec) * time.Second
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
