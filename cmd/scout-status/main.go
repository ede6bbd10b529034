package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"silverscout/internal/config"
	"silverscout/internal/notified"
	"silverscout/internal/obs"
	"silverscout/internal/quota"
	"silverscout/internal/spot"
	"silverscout/internal/state"
)

type spotStatus struct {
	Price     string    `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
	AgeSec    int64     `json:"age_sec"`
	Fresh     bool      `json:"fresh"`
}

type keyStatus struct {
	KeyID     string `json:"key_id"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

type quotaStatus struct {
	Month     string      `json:"month"`
	Limit     int         `json:"limit_per_key"`
	Remaining int         `json:"remaining"`
	Keys      []keyStatus `json:"keys"`
}

type status struct {
	Spot          *spotStatus `json:"spot_price"`
	Quota         quotaStatus `json:"quota"`
	NotifiedDeals int         `json:"notified_deals"`
}

type reporter struct {
	store  state.Store
	keys   []string
	limit  int
	window time.Duration
	now    func() time.Time
}

func (r *reporter) status(ctx context.Context) (status, error) {
	now := r.now()
	var out status

	cache := &spot.Cache{Store: r.store, TTL: r.window}
	if p, ok, err := cache.Get(ctx); err != nil {
		return out, err
	} else if ok {
		out.Spot = &spotStatus{
			Price:     p.Amount.StringFixed(2),
			FetchedAt: p.FetchedAt,
			AgeSec:    int64(p.Age(now) / time.Second),
			Fresh:     p.Age(now) < r.window,
		}
	}

	ledger, err := quota.Load(ctx, r.store, r.limit, quota.WithClock(r.now))
	if err != nil {
		return out, err
	}
	usage := ledger.Snapshot()
	out.Quota = quotaStatus{
		Month:     usage.Month,
		Limit:     ledger.Limit(),
		Remaining: ledger.RemainingRequests(r.keys),
		Keys:      make([]keyStatus, 0, len(r.keys)),
	}
	for _, k := range r.keys {
		id := quota.KeyID(k)
		used := usage.Keys[id]
		out.Quota.Keys = append(out.Quota.Keys, keyStatus{KeyID: id, Used: used, Remaining: max(0, ledger.Limit()-used)})
	}

	deals, err := notified.Load(ctx, r.store)
	if err != nil {
		return out, err
	}
	out.NotifiedDeals = deals.Len()
	return out, nil
}

func (r *reporter) write(ctx context.Context, w io.Writer) error {
	s, err := r.status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func (r *reporter) handleStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s, err := r.status(req.Context())
	if err != nil {
		http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func main() {
	var (
		configPath string
		listen     string
	)
	flag.StringVar(&configPath, "config", "", "path to config.json (optional, defaults to CONFIG_FILE)")
	flag.StringVar(&listen, "listen", "", "serve GET /status on this address instead of printing once")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := obs.NewLogger(os.Stderr, cfg.Run.LogFormat, cfg.Run.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeFn, err := state.Open(ctx, state.Backend{
		Kind:        cfg.Run.State.Backend,
		Dir:         cfg.Run.State.Dir,
		RedisAddr:   cfg.Run.State.RedisAddr,
		RedisPrefix: cfg.Run.State.RedisPrefix,
	})
	if err != nil {
		log.Error("state store", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	r := &reporter{
		store:  store,
		keys:   cfg.Spot.APIKeys,
		limit:  cfg.Spot.MonthlyLimit,
		window: cfg.Spot.FreshnessWindow(),
		now:    time.Now,
	}

	if listen == "" {
		if err := r.write(ctx, os.Stdout); err != nil {
			log.Error("status", "err", err)
			os.Exit(1)
		}
		return
	}
	serve(ctx, listen, r, log)
}

func serve(ctx context.Context, addr string, r *reporter, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", r.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           withJSONHeaders(recoverPanic(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
