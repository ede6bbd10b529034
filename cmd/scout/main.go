package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"silverscout/internal/config"
	"silverscout/internal/deal"
	"silverscout/internal/httpx"
	"silverscout/internal/obs"
	"silverscout/internal/pipeline"
	"silverscout/internal/product"
	"silverscout/internal/ratelimit"
	"silverscout/internal/sink"
	"silverscout/internal/sink/dashboard"
	"silverscout/internal/sink/gist"
	"silverscout/internal/sink/telegram"
	"silverscout/internal/source"
	"silverscout/internal/spot/goldapi"
	"silverscout/internal/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run performs one scout pass and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		logFormat  string
		logLevel   string
		sourcesCSV string
		timeout    int
	)
	fs.StringVar(&configPath, "config", "", "path to config.json (optional, defaults to CONFIG_FILE)")
	fs.StringVar(&logFormat, "log-format", "", "json or text")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&sourcesCSV, "sources", "", "comma-separated source ids to scrape")
	fs.IntVar(&timeout, "timeout", 0, "request timeout seconds")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if logFormat != "" {
		cfg.Run.LogFormat = logFormat
	}
	if logLevel != "" {
		cfg.Run.LogLevel = logLevel
	}
	if sourcesCSV != "" {
		cfg.Sources.Enabled = splitCSV(sourcesCSV)
	}
	if timeout > 0 {
		cfg.Run.RequestTimeoutSec = timeout
	}

	log, err := obs.NewLogger(stdout, cfg.Run.LogFormat, cfg.Run.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}

	driver, closeFn, err := build(ctx, cfg, log)
	defer func() {
		if err := closeFn(); err != nil {
			log.Warn("closing state store", "err", err)
		}
	}()
	if err != nil {
		log.Error("setup failed", "err", err)
		return 1
	}

	if sum := driver.Run(ctx); sum.Fatal() {
		return 1
	}
	return 0
}

// build wires every component from cfg.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*pipeline.Driver, func() error, error) {
	store, closeFn, err := state.Open(ctx, state.Backend{
		Kind:        cfg.Run.State.Backend,
		Dir:         cfg.Run.State.Dir,
		RedisAddr:   cfg.Run.State.RedisAddr,
		RedisPrefix: cfg.Run.State.RedisPrefix,
	})
	if err != nil {
		return nil, closeFn, fmt.Errorf("state store: %w", err)
	}

	httpClient := httpx.New(cfg.Run.RequestTimeout())

	sources := make([]product.Source, 0, len(cfg.Sources.Enabled))
	for _, name := range cfg.Sources.Enabled {
		src, err := source.New(name, source.Config{
			BaseURL: cfg.Sources.URLs[name],
			Client:  httpClient,
			Gate:    ratelimit.New(cfg.Sources.MaxRPM, cfg.Sources.Burst, cfg.Sources.MinInterval()),
		})
		if err != nil {
			return nil, closeFn, err
		}
		sources = append(sources, src)
	}

	policy, err := deal.NewPolicy(cfg.Deal.Policy, cfg.Deal.MaxPremium, cfg.Deal.HardCap)
	if err != nil {
		return nil, closeFn, err
	}

	var out sink.Sink
	switch cfg.Notify.Sink {
	case "dashboard":
		out = dashboard.New(cfg.Notify.Dashboard.URL, cfg.Notify.Dashboard.APIKey, httpClient, log)
	default:
		opts := []telegram.Option{telegram.WithHTTPClient(httpClient)}
		if cfg.Notify.Telegram.Endpoint != "" {
			opts = append(opts, telegram.WithBaseURL(cfg.Notify.Telegram.Endpoint))
		}
		out = telegram.New(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID, opts...)
	}

	header := http.Header{}
	for k, v := range cfg.Spot.Headers {
		header.Set(k, v)
	}
	fetcher := goldapi.NewClient(
		goldapi.WithBaseURL(cfg.Spot.Endpoint),
		goldapi.WithHTTPClient(httpClient),
		goldapi.WithHeader(header),
	)

	driver := pipeline.New(pipeline.Options{
		Missing:         cfg.Missing(),
		APIKeys:         cfg.Spot.APIKeys,
		Metal:           cfg.Spot.Metal,
		Currency:        cfg.Spot.Currency,
		FreshnessWindow: cfg.Spot.FreshnessWindow(),
		MonthlyLimit:    cfg.Spot.MonthlyLimit,
		SkipSpot:        !cfg.NeedsSpot() && len(cfg.Spot.APIKeys) == 0,
		Policy:          policy,
		MaxConcurrency:  cfg.Sources.MaxConcurrency,
	}, store, fetcher, sources, out, log)

	if cfg.GistEnabled() {
		opts := []gist.Option{gist.WithHTTPClient(httpClient)}
		if cfg.Gist.Endpoint != "" {
			opts = append(opts, gist.WithBaseURL(cfg.Gist.Endpoint))
		}
		driver.WithMirror(gist.New(cfg.Gist.Token, cfg.Gist.ID, opts...))
	}
	return driver, closeFn, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
