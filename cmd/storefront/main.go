package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/orderflow/storefront/internal/config"
	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/http-server/router"
	"github.com/orderflow/storefront/internal/jobs"
	"github.com/orderflow/storefront/internal/lifecycle"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/notify"
	processor "github.com/orderflow/storefront/internal/processor/webhook"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/internal/storage/kafka"
	"github.com/orderflow/storefront/internal/storage/postgres"
	"github.com/orderflow/storefront/internal/storage/redis"
	"github.com/orderflow/storefront/lib/logger/sl"
	"github.com/orderflow/storefront/lib/logger/slogpretty"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	wg := &sync.WaitGroup{}

	cfg := config.MustLoad()

	log := slogpretty.SetupLogger(cfg.Env)

	log.Info("starting storefront", slog.String("env", cfg.Env))

	storage, err := postgres.New(cfg.Postgres, log)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	log.Info("storage init successful")

	cache, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to init cache", sl.Err(err))
		os.Exit(1)
	}

	log.Info("cache init successful")

	warmCache(ctx, log, storage, cache)

	aggregator := shipping.NewSimulated(log)

	engine := lifecycle.New(
		storage,
		storage,
		gateway.NewSimulated(log),
		aggregator,
		cache,
		notify.NewLogger(log),
		lifecycle.Config{
			Currency:        cfg.Lifecycle.Currency,
			AdapterTimeout:  cfg.Gateway.Timeout,
			RetentionWindow: cfg.Lifecycle.RetentionWindow,
			ArchiveWindow:   cfg.Lifecycle.ArchiveWindow,
			ReminderAge:     cfg.Lifecycle.ReminderAge,
			ShippingRetry: shipping.RetryPolicy{
				MaxAttempts: cfg.Shipping.MaxAttempts,
				BaseDelay:   cfg.Shipping.BackoffBase,
				MaxDelay:    cfg.Shipping.BackoffMax,
			},
			DefaultParcel: shipping.Parcel{
				WeightGrams: 1000,
				LengthMM:    300,
				WidthMM:     200,
				HeightMM:    150,
			},
			OriginAddress: models.Address{
				Name:    cfg.Shipping.OriginName,
				Zip:     cfg.Shipping.OriginZip,
				City:    cfg.Shipping.OriginCity,
				Address: cfg.Shipping.OriginAddress,
				Region:  cfg.Shipping.OriginRegion,
			},
		},
		log,
	)

	eventChan := make(chan *sarama.ConsumerMessage)
	commitChan := make(chan *sarama.ConsumerMessage)

	c, err := kafka.NewConsumer(cfg.Kafka, eventChan, commitChan, log)
	if err != nil {
		log.Error("failed to init consumer", sl.Err(err))
		os.Exit(1)
	}

	log.Info("consumer init successful")

	wg.Add(1)
	go c.ProcessMessages(ctx, cfg.Kafka.Topic, wg)

	wg.Add(1)
	go processor.New(engine, eventChan, commitChan, log).ProcessEvents(ctx, wg)

	jobs.New(log, cfg.Jobs, engine, storage, aggregator).Start(ctx, wg)

	srv := &http.Server{
		Addr: cfg.HTTPServer.Address,
		Handler: router.New(ctx, log, engine, cache, storage, storage, router.Secrets{
			PaymentWebhook:  cfg.Gateway.WebhookSecret,
			ShippingWebhook: cfg.Shipping.WebhookSecret,
		}),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting http server", slog.String("address", cfg.HTTPServer.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", sl.Err(err))
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	<-sigchan
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown http server", sl.Err(err))
	}

	wg.Wait()

	log.Info("shutting down consumer")
	c.Consumer.Close()
}

// warmCache loads the still-active orders into Redis so the read path
// does not hammer Postgres right after a restart.
func warmCache(ctx context.Context, log *slog.Logger, storage *postgres.Storage, cache *redis.Client) {
	var orders []*models.Order

	for _, state := range []models.OrderState{
		models.StatePending,
		models.StateAwaitingPayment,
		models.StatePaid,
		models.StateProcessing,
		models.StateShipped,
		models.StateDelivered,
	} {
		batch, err := storage.ListOrdersInState(ctx, state, time.Now().UTC())
		if err != nil {
			log.Error("failed to list orders for cache warmup", sl.Err(err))

			return
		}

		orders = append(orders, batch...)
	}

	if err := cache.Warm(ctx, orders); err != nil {
		log.Error("failed to warm cache", sl.Err(err))

		return
	}

	log.Info("cache warmed", slog.Int("orders", len(orders)))
}
