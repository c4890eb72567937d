package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/OYD-Protocol/shoptrack/internal/config"
	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// EventProcessor receives decoded events from the consumer loop.
type EventProcessor interface {
	Process(ctx context.Context, ev event.Event) error
	Flush()
}

// KafkaConsumer consumes raw events from Kafka
type KafkaConsumer struct {
	reader    *kafka.Reader
	processor EventProcessor
}

func NewKafkaConsumer(cfg config.KafkaConfig, processor EventProcessor) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
	}
}

// Start begins consuming messages. Undecodable messages are committed and
// skipped so one poison record cannot wedge the partition.
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group", c.reader.Config().GroupID).
		Msg("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Kafka consumer stopped")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Failed to fetch message")
				continue
			}

			var ev event.Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				log.Error().
					Err(err).
					Str("value", string(msg.Value)).
					Msg("Failed to parse message")
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Msg("Failed to commit message")
				}
				continue
			}

			if err := c.processor.Process(ctx, ev); err != nil {
				log.Error().
					Err(err).
					Str("event_id", ev.EventID).
					Msg("Failed to process event")
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}

// Close closes the consumer after flushing whatever the processor buffered.
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
