package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/orderflow/storefront/internal/events"
	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/lib/logger/sl"
	wp "github.com/orderflow/storefront/lib/workerpool"
)

// Engine is the slice of the lifecycle engine the processor drives.
// Both calls are idempotent, so redelivered messages are safe.
type Engine interface {
	HandlePaymentWebhook(ctx context.Context, evt gateway.WebhookEvent) error
	HandleShippingWebhook(ctx context.Context, evt shipping.TrackingEvent) error
}

type IPool interface {
	Create()
	Handle(context.Context, *sarama.ConsumerMessage) error
	Wait()
}

type Processor struct {
	Engine     Engine
	eventChan  <-chan *sarama.ConsumerMessage
	commitChan chan<- *sarama.ConsumerMessage
	log        *slog.Logger
}

func New(
	engine Engine,
	eventChan <-chan *sarama.ConsumerMessage,
	commitChan chan<- *sarama.ConsumerMessage,
	log *slog.Logger,
) *Processor {
	return &Processor{
		Engine:     engine,
		eventChan:  eventChan,
		commitChan: commitChan,
		log:        log,
	}
}

func (p *Processor) ProcessEvents(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	const fn = "processor.webhook.ProcessEvents"
	log := p.log.With("fn", fn)

	batch := make([]*sarama.ConsumerMessage, 0, wp.MaxWorkersCount)

	pool := wp.New(p.processEvent)

	for {
		select {
		case <-ctx.Done():
			if len(batch) != 0 {
				p.processBatch(ctx, batch, pool)
			}

			log.Info("stopping event processing by context")
			return

		case msg := <-p.eventChan:
			batch = append(batch, msg)

			if len(batch) == wp.MaxWorkersCount {
				p.processBatch(ctx, batch, pool)

				batch = make([]*sarama.ConsumerMessage, 0, wp.MaxWorkersCount)
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context, batch []*sarama.ConsumerMessage, pool IPool) {
	pool.Create()

	wg := &sync.WaitGroup{}

	for _, msg := range batch {
		wg.Add(1)

		go func(currentMsg *sarama.ConsumerMessage) {
			defer wg.Done()

			err := pool.Handle(ctx, currentMsg)
			if err != nil {

				p.log.Error("failed to handle webhook message", sl.Err(err))
			} else {
				p.commitChan <- currentMsg
			}
		}(msg)
	}

	wg.Wait()
	pool.Wait()
}

func (p *Processor) processEvent(ctx context.Context, msg *sarama.ConsumerMessage) error {
	p.log.Info("received webhook event")

	var envelope events.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		p.log.Error("can't unmarshal envelope", sl.Err(err))

		return fmt.Errorf("can't unmarshal envelope: %v", err)
	}

	switch envelope.Source {
	case "payment":
		var evt gateway.WebhookEvent
		if err := json.Unmarshal(envelope.Event, &evt); err != nil {
			return fmt.Errorf("can't unmarshal payment event: %v", err)
		}

		if err := p.Engine.HandlePaymentWebhook(ctx, evt); err != nil {
			p.log.Error("failed to ingest payment event", sl.Err(err))

			return fmt.Errorf("failed to ingest payment event: %v", err)
		}

	case "shipping":
		var evt shipping.TrackingEvent
		if err := json.Unmarshal(envelope.Event, &evt); err != nil {
			return fmt.Errorf("can't unmarshal tracking event: %v", err)
		}

		if err := p.Engine.HandleShippingWebhook(ctx, evt); err != nil {
			p.log.Error("failed to ingest tracking event", sl.Err(err))

			return fmt.Errorf("failed to ingest tracking event: %v", err)
		}

	default:
		return fmt.Errorf("unknown event source %q", envelope.Source)
	}

	p.log.Info("event ingested")

	return nil
}
