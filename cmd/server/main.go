package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/markingsheet/internal/api/http"
	"github.com/mind-engage/markingsheet/internal/assessment"
	"github.com/mind-engage/markingsheet/internal/auth"
	"github.com/mind-engage/markingsheet/internal/config"
	"github.com/mind-engage/markingsheet/internal/db"
	"github.com/mind-engage/markingsheet/internal/logging"
	"github.com/mind-engage/markingsheet/internal/metrics"
	"github.com/mind-engage/markingsheet/internal/ratelimit"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

type stores struct {
	sheets      sheet.Store
	assessments assessment.Store
	ping        func(context.Context) error
	close       func() error
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.DBDriver == "memory" {
		assessments := assessment.NewMemoryStore()
		return stores{
			sheets:      sheet.NewMemoryStore(cfg.DefaultSheetPassword, sheet.WithOnDelete(assessments.DeleteBySheet)),
			assessments: assessments,
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		sheets:      sheet.NewSQLStore(dbh, cfg.DefaultSheetPassword),
		assessments: assessment.NewSQLStore(dbh),
		ping:        dbh.PingContext,
		close:       dbh.Close,
	}, nil
}

func newUnlockLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (ratelimit.Limiter, func() error, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(cfg.UnlockMaxAttempts, cfg.UnlockWindow), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis connected", zap.String("address", cfg.RedisAddr), zap.Int("database", cfg.RedisDB))
	return ratelimit.NewRedis(client, "markingsheet:unlock:", cfg.UnlockMaxAttempts, cfg.UnlockWindow), client.Close, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer func() { _ = st.close() }()

	limiter, closeLimiter, err := newUnlockLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLimiter() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.AdminTokenTTL, cfg.SheetTokenTTL)
	var google *auth.Google
	if cfg.EnableGoogleAuth {
		google = auth.NewGoogle(authSvc, cfg)
	}

	sheets := sheet.NewCached(st.sheets, cfg.SheetCacheTTL)
	h := api.NewRouter(api.Deps{
		Config:      cfg,
		Logger:      logger,
		Auth:        authSvc,
		Google:      google,
		Sheets:      sheets,
		Unlocks:     limiter,
		Assessments: assessment.NewService(st.assessments, sheets, m, logger.Named("assessment")),
		Metrics:     m,
		Gatherer:    reg,
		Ping:        st.ping,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.Bool("google_auth", google != nil),
			zap.Bool("shared_rate_limit", cfg.RedisAddr != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	return g.Wait()
}
