package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-shop-auth/internal/cache"
	"github.com/pribylovaa/go-shop-auth/internal/config"
	"github.com/pribylovaa/go-shop-auth/internal/cookie"
	authhttp "github.com/pribylovaa/go-shop-auth/internal/http"
	"github.com/pribylovaa/go-shop-auth/internal/metrics"
	"github.com/pribylovaa/go-shop-auth/internal/service"
	"github.com/pribylovaa/go-shop-auth/internal/storage"
	"github.com/pribylovaa/go-shop-auth/internal/storage/memory"
	"github.com/pribylovaa/go-shop-auth/internal/storage/mongo"
	"github.com/pribylovaa/go-shop-auth/internal/storage/postgres"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const basePath = "/api/v1"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting auth-service", "env", cfg.Env, "db_driver", cfg.DB.Driver, "cookie_mode", cfg.Cookie.Mode)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("storage_connected", slog.String("driver", cfg.DB.Driver))

	codec, err := token.New(cfg.Auth)
	if err != nil {
		log.Error("token_codec_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Режим cookie вычисляется один раз и дальше передаётся явно.
	mode, err := cookie.ParseMode(cfg.Cookie.Mode)
	if err != nil {
		log.Error("cookie_mode_invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}

	cookies, err := cookie.New(mode, cfg.Cookie, codec.AccessTTL(), codec.RefreshTTL())
	if err != nil {
		log.Error("cookie_transport_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	srvc := service.New(str, codec, cookies, m)

	// Кэш identity — опционально.
	if cfg.Redis.RedisURL != "" {
		cacheCtx, cacheCancel := context.WithTimeout(rootCtx, 5*time.Second)
		ic, err := cache.NewRedisCache(cacheCtx, cfg.Redis.RedisURL, "")
		cacheCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer func() {
			if cerr := ic.Close(); cerr != nil {
				log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
			}
		}()

		srvc.SetIdentityCache(ic, cfg.Redis.IdentityTTL)
		log.Info("redis_connected", slog.Duration("identity_ttl", cfg.Redis.IdentityTTL))
	}

	log.Info("service_initialized")

	apiHandler := authhttp.NewRouter(authhttp.Deps{
		Service: srvc,
		Codec:   codec,
		Cookies: cookies,
		Metrics: m,
	}, authhttp.Options{
		Logger:   log,
		Timeout:   cfg.Timeouts.Service,
		BasePath:  basePath,
		AuthRPS:   cfg.HTTP.AuthRPS,
		AuthBurst: cfg.HTTP.AuthBurst,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := str.Ping(ctx); err != nil {
			log.Warn("healthz_storage_ping_failed", slog.String("err", err.Error()))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("auth_service_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// openStorage выбирает реализацию хранилища по драйверу из конфига.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverMongo:
		return mongo.New(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
