package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/orderflow/storefront/internal/config"
	"github.com/orderflow/storefront/lib/logger/sl"
)

const batchsize = 100

// Consumer reads buffered webhook event envelopes from the events
// topic. Delivery is at-least-once: offsets are committed manually
// after the engine has recorded the event, and the webhook_events
// unique index makes redelivery harmless.
type Consumer struct {
	Consumer   sarama.ConsumerGroup
	eventChan  chan<- *sarama.ConsumerMessage
	commitChan <-chan *sarama.ConsumerMessage
	log        *slog.Logger
}

func NewConsumer(
	cfg config.Kafka,
	eventChan chan<- *sarama.ConsumerMessage,
	commitChan <-chan *sarama.ConsumerMessage,
	log *slog.Logger,
) (*Consumer, error) {
	config := sarama.NewConfig()

	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.IsolationLevel = sarama.ReadCommitted
	config.Consumer.Offsets.AutoCommit.Enable = false

	cg, err := sarama.NewConsumerGroup(cfg.BootstrapServers, cfg.Consumer.GroupId, config)
	if err != nil {
		return nil, fmt.Errorf("can't create consumer: %v", err)
	}

	return &Consumer{
		Consumer:   cg,
		eventChan:  eventChan,
		commitChan: commitChan,
		log:        log,
	}, nil
}

func (c *Consumer) ProcessMessages(ctx context.Context, topic string, wg *sync.WaitGroup) {
	defer wg.Done()

	const fn = "storage.kafka.ProcessMessages"

	log := c.log.With("fn", fn)

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping message processing")
			return

		default:
			err := c.Consumer.Consume(ctx, []string{topic}, &consumerHandler{
				eventChan:  c.eventChan,
				commitChan: c.commitChan,
				Log:        c.log,
			})
			if err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					c.log.Info("consumer group closed, exiting process messages loop")
					return
				}
				c.log.Error("error from consumer", sl.Err(err))
			}
		}
	}
}

type consumerHandler struct {
	eventChan  chan<- *sarama.ConsumerMessage
	commitChan <-chan *sarama.ConsumerMessage
	Log        *slog.Logger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	processed := 0

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.Log.Info(
				"recieved message",
				slog.Int("partition", int(msg.Partition)),
				slog.Int("offset", int(msg.Offset)),
			)

			h.eventChan <- msg

		case msg := <-h.commitChan:
			session.MarkMessage(msg, "")

			processed++

			if processed >= batchsize {
				h.Log.Info("commiting messages")
				session.Commit()
				processed = 0
			}

		case <-session.Context().Done():
			session.Commit()

			return nil
		}
	}
}
