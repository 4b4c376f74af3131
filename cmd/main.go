package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dayvson009/compraslivre.tec/internal/catalog"
	"github.com/dayvson009/compraslivre.tec/internal/config"
	"github.com/dayvson009/compraslivre.tec/internal/events"
	"github.com/dayvson009/compraslivre.tec/internal/gateway"
	"github.com/dayvson009/compraslivre.tec/internal/handler"
	"github.com/dayvson009/compraslivre.tec/internal/payment"
	"github.com/dayvson009/compraslivre.tec/internal/store"
	"github.com/dayvson009/compraslivre.tec/internal/worker"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("configuration error", zap.Error(err))
	}
	log.Info("mercado pago credential detected",
		zap.String("kind", gateway.TokenKind(cfg.MPAccessToken)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal("schema migration failed", zap.Error(err))
	}

	recordStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", zap.Error(err))
	}
	defer recordStore.Close()

	mp := gateway.NewMercadoPago(cfg.MPBaseURL, cfg.MPAccessToken, cfg.CreateTimeout, cfg.GetTimeout, log)

	var publisher payment.EventPublisher
	if cfg.KafkaBroker != "" {
		kp := events.NewPublisher(cfg.KafkaBroker, cfg.KafkaTopic, log)
		defer kp.Close()
		publisher = kp
		log.Info("paid-event publisher enabled",
			zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.KafkaTopic))
	}

	reconciler := payment.NewReconciler(recordStore, mp, publisher, log)
	checkout := payment.NewCheckoutService(recordStore, mp, payment.CheckoutOptions{
		PublicBaseURL:     cfg.PublicBaseURL,
		DefaultPayerEmail: cfg.MPPayerEmail,
	}, log)

	srv := handler.New(checkout, reconciler, recordStore, catalog.Default(), cfg, log)
	router := srv.Router()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.PollerEnabled {
		poller := worker.NewPoller(recordStore, reconciler, worker.Options{
			Interval:   cfg.PollerInterval,
			Lookback:   cfg.PollerLookback,
			BatchSize:  cfg.PollerBatch,
			GetTimeout: cfg.GetTimeout,
		}, log)
		g.Go(func() error {
			poller.Start(ctx)
			return nil
		})
	} else {
		log.Info("pending poller disabled (POLLER_ENABLED=false)")
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("service terminated", zap.Error(err))
	}
	log.Info("service stopped")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Up(db, "migrations")
}
