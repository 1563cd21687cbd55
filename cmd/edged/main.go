package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casaline/edge/internal/breaker"
	"github.com/casaline/edge/internal/clock"
	"github.com/casaline/edge/internal/config"
	"github.com/casaline/edge/internal/embed"
	"github.com/casaline/edge/internal/httpcall"
	"github.com/casaline/edge/internal/logging"
	"github.com/casaline/edge/internal/mw"
	"github.com/casaline/edge/internal/netx"
	"github.com/casaline/edge/internal/ratelimit"
)

func main() {
	var configPath string
	var validateOnly bool
	flag.StringVar(&configPath, "config", "./config/config.example.yaml", "path to yaml config")
	flag.BoolVar(&validateOnly, "validate-config", false, "validate config and exit")
	flag.Parse()

	log := logging.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if validateOnly {
		log.Info("config ok")
		return
	}

	// Request-path logging goes through the async handler so log I/O never
	// stalls a request.
	async := logging.NewAsync(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}), 4096)
	defer async.Close()
	reqLog := slog.New(async)

	clk := clock.Real{}

	// ---- Rate limiter
	st := ratelimit.NewStore(ratelimit.BackendConfig{
		UseRedis:           cfg.RateLimit.UseRedis,
		RedisAddr:          cfg.RateLimit.Redis.Addr,
		RedisPassword:      cfg.RateLimit.Redis.Password,
		RedisDB:            cfg.RateLimit.Redis.DB,
		MemoryCleanupEvery: time.Duration(cfg.RateLimit.MemoryCleanupSeconds) * time.Second,
	}, clk, log)
	defer st.Close()

	limiter := ratelimit.New(ratelimit.Options{
		Interval:      cfg.RateLimit.Interval(),
		MaxRequests:   cfg.RateLimit.MaxRequests,
		Prefix:        cfg.RateLimit.Prefix,
		EnableLogging: cfg.RateLimit.EnableLogging,
	}, st, reqLog)

	// ---- Circuit breakers
	registry := breaker.NewRegistry(clk, breaker.Defaults{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout(),
	})

	// ---- Embedding sidecar client
	policy := httpcall.RetryPolicy{
		MaxRetries:           cfg.Retry.MaxRetries,
		InitialBackoff:       cfg.Retry.InitialBackoff(),
		BackoffFactor:        cfg.Retry.BackoffFactor,
		Timeout:              cfg.Retry.Timeout(),
		RetryableStatusCodes: statusSet(cfg.Retry.RetryableStatusCodes),
	}
	caller := httpcall.NewClient(&http.Client{
		Transport: httpcall.NewHTTPTransport(httpcall.DefaultTransportConfig()),
	}, policy, clk)

	embedder := embed.NewClient(embed.Options{
		URL:          cfg.Embedder.URL,
		Dimensions:   cfg.Embedder.Dimensions,
		FallbackZero: cfg.Embedder.FallbackZeroVector,
		MaxRPS:       cfg.Embedder.MaxRPS,
		Burst:        cfg.Embedder.Burst,
	}, caller, registry.Get(embed.BreakerName), reqLog)

	// ---- Identity for rate-limit scoping
	trusted, err := netx.ParseCIDRSet(cfg.Server.TrustedProxies)
	if err != nil {
		log.Error("invalid server.trusted_proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ids := mw.IdentityResolver{
		IP:        mw.IPResolver{Trusted: trusted},
		JWTSecret: []byte(config.String("EDGE_JWT_SECRET", "")),
	}

	// ---- Metrics
	reg := prometheus.NewRegistry()
	metrics := mw.NewMetrics(reg)

	sem := mw.NewSemaphore(cfg.Server.MaxInFlight)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	// The embedder breaker wraps the sidecar call itself (see
	// internal/embed), so the handler chain carries no CircuitBreak layer.
	wrap := func(routeName string, h http.Handler) http.Handler {
		h = mw.MaxBodyBytes(cfg.Server.MaxBodyBytes, h)
		h = mw.ConcurrencyLimit(sem, h)
		h = mw.RateLimit(limiter, ids, h)
		h = mw.Recover(reqLog, h)
		h = mw.AccessLog(reqLog, h)
		h = mw.Instrument(metrics, h)
		h = mw.WithRoute(h, routeName)
		h = mw.RequestID(h)
		return h
	}

	mux.Handle("POST /v1/embed", wrap("embed", embedHandler(embedder, reqLog)))

	// ---- Admin endpoints (guarded)
	startedAt := time.Now()
	adminKey := config.String("EDGE_ADMIN_KEY", "")
	wrapAdmin := func(routeName string, h http.Handler) http.Handler {
		h = mw.RequireAdminKey(adminKey, h)
		h = mw.AccessLog(reqLog, h)
		h = mw.Instrument(metrics, h)
		h = mw.WithRoute(h, routeName)
		h = mw.RequestID(h)
		return h
	}

	mux.Handle("/-/status", wrapAdmin("admin_status", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		info, _ := debug.ReadBuildInfo()
		goVer := ""
		if info != nil {
			goVer = info.GoVersion
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time_utc":       time.Now().UTC().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"listen_addr":    cfg.Server.Addr,
			"go_version":     goVer,
			"redis_backend":  cfg.RateLimit.UseRedis,
			"embedder_url":   cfg.Embedder.URL,
			"logs_dropped":   async.Dropped(),
		})
	})))

	mux.Handle("/-/limits", wrapAdmin("admin_limits", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		opts := limiter.Options()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rate_limit": map[string]any{
				"interval":     opts.Interval.String(),
				"max_requests": opts.MaxRequests,
				"prefix":       opts.Prefix,
			},
			"concurrency": map[string]any{
				"max_in_flight": sem.Cap(),
				"in_flight":     sem.InUse(),
			},
			"circuit_breakers": registry.Stats(),
		})
	})))

	mux.Handle("POST /-/reset", wrapAdmin("admin_reset", resetHandler(limiter, registry)))

	// ---- Server
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("edged listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("shutdown complete")
}

func statusSet(codes []int) map[int]struct{} {
	m := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}
