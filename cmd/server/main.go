package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/config"
	"github.com/iliyamo/table-session/internal/database"
	"github.com/iliyamo/table-session/internal/handler"
	"github.com/iliyamo/table-session/internal/middleware"
	"github.com/iliyamo/table-session/internal/queue"
	"github.com/iliyamo/table-session/internal/repository"
	"github.com/iliyamo/table-session/internal/router"
	"github.com/iliyamo/table-session/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)
	log.WithField("env", cfg.Env).Info("app: starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		log.WithError(err).Fatal("db: open failed")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("db: migrate failed")
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	var workers sync.WaitGroup
	opts := []service.Option{service.WithLogger(log)}
	if evictor := middleware.NewTableCacheEvictor(cacheCfg, rdb); evictor != nil {
		opts = append(opts, service.WithTableObserver(evictor))
	}
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, 0)
		opts = append(opts, service.WithPublisher(pub))
		startWorker(ctx, &workers, log, "publisher", pub.Run)
		if cfg.AuditLog {
			startWorker(ctx, &workers, log, "audit-consumer", queue.NewAuditConsumer(cfg.AMQPURL).Run)
		}
	} else {
		log.Info("events: AMQP_URL not set; session events disabled")
	}

	store := repository.NewMySQLStore(db)
	checkin := service.NewCheckinCoordinator(store, service.NewFantasyNames(), opts...)
	orders := service.NewGroupOrderCoordinator(store, nil, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterSessions(e, handler.NewSessionHandler(checkin, orders), router.SessionMiddleware{
		Identity:  middleware.OptionalJWT(cfg.JWTSecret),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
	})

	addr := ":" + cfg.Port
	serverErrCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http: listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("app: shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			log.WithError(err).Error("http: server failed")
			exitCode = 1
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownSecs)*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http: graceful shutdown failed")
		exitCode = 1
	}
	workers.Wait()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	log.Info("app: stopped")
}

// startWorker runs fn until ctx is cancelled.
func startWorker(ctx context.Context, wg *sync.WaitGroup, log logrus.FieldLogger, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("worker", name).Error("worker stopped")
		}
	}()
}
