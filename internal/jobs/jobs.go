// Package jobs runs the periodic maintenance loops: polling carrier
// tracking for in-flight shipments, sweeping delivered orders past the
// retention window, archiving old terminal orders and reminding
// customers about unpaid orders.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orderflow/storefront/internal/config"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/lib/logger/sl"
	"github.com/orderflow/storefront/lib/workerpool"
)

type Engine interface {
	IngestTrackingUpdate(ctx context.Context, shipmentRef string, status shipping.TrackingStatus) error
	SweepDelivered(ctx context.Context) (int, error)
	ArchiveTerminal(ctx context.Context) (int64, error)
	RemindAwaitingPayment(ctx context.Context) (int, error)
}

type ShipmentLister interface {
	ListActiveShipments(ctx context.Context) ([]*models.ShipmentRecord, error)
}

type Runner struct {
	log        *slog.Logger
	cfg        config.Jobs
	engine     Engine
	shipments  ShipmentLister
	aggregator shipping.Aggregator
}

func New(
	log *slog.Logger,
	cfg config.Jobs,
	engine Engine,
	shipments ShipmentLister,
	aggregator shipping.Aggregator,
) *Runner {
	return &Runner{
		log:        log,
		cfg:        cfg,
		engine:     engine,
		shipments:  shipments,
		aggregator: aggregator,
	}
}

// Start launches all loops. Each loop stops when ctx is cancelled and
// releases its WaitGroup slot.
func (r *Runner) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(3)

	go r.loop(ctx, wg, r.cfg.TrackingPollInterval, r.pollTracking)
	go r.loop(ctx, wg, r.cfg.SweepInterval, r.sweep)
	go r.loop(ctx, wg, r.cfg.ReminderInterval, r.remind)
}

func (r *Runner) loop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, task func(ctx context.Context)) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// pollTracking pulls the current status for every active shipment and
// feeds it through the engine. Lookups run on the shared worker pool
// so a slow carrier does not serialize the whole sweep.
func (r *Runner) pollTracking(ctx context.Context) {
	const fn = "jobs.pollTracking"

	log := r.log.With(slog.String("fn", fn))

	records, err := r.shipments.ListActiveShipments(ctx)
	if err != nil {
		log.Error("failed to list active shipments", sl.Err(err))

		return
	}

	if len(records) == 0 {
		return
	}

	pool := workerpool.New(func(ctx context.Context, rec *models.ShipmentRecord) error {
		status, err := r.aggregator.GetTracking(ctx, rec.ShipmentRef)
		if err != nil {
			return err
		}

		if string(status) == rec.TrackingStatus {
			return nil
		}

		return r.engine.IngestTrackingUpdate(ctx, rec.ShipmentRef, status)
	})
	pool.Create()

	var wg sync.WaitGroup

	for _, rec := range records {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := pool.Handle(ctx, rec); err != nil {
				log.Error("failed to refresh tracking",
					slog.String("shipment_ref", rec.ShipmentRef),
					sl.Err(err),
				)
			}
		}()
	}

	wg.Wait()
	pool.Wait()

	log.Info("tracking poll finished", slog.Int("shipments", len(records)))
}

func (r *Runner) sweep(ctx context.Context) {
	const fn = "jobs.sweep"

	log := r.log.With(slog.String("fn", fn))

	completed, err := r.engine.SweepDelivered(ctx)
	if err != nil {
		log.Error("failed to sweep delivered orders", sl.Err(err))
	}

	archived, err := r.engine.ArchiveTerminal(ctx)
	if err != nil {
		log.Error("failed to archive terminal orders", sl.Err(err))
	}

	if completed > 0 || archived > 0 {
		log.Info("sweep finished",
			slog.Int("completed", completed),
			slog.Int64("archived", archived),
		)
	}
}

func (r *Runner) remind(ctx context.Context) {
	const fn = "jobs.remind"

	log := r.log.With(slog.String("fn", fn))

	sent, err := r.engine.RemindAwaitingPayment(ctx)
	if err != nil {
		log.Error("failed to send payment reminders", sl.Err(err))

		return
	}

	if sent > 0 {
		log.Info("payment reminders sent", slog.Int("count", sent))
	}
}
