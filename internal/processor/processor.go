package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/OYD-Protocol/shoptrack/internal/config"
	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// EventWriter appends a batch of events to storage.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []event.Event) error
}

// BatchProcessor buffers consumed events and flushes them to storage when
// the buffer fills or the flush interval elapses.
type BatchProcessor struct {
	writer   EventWriter
	batchCfg config.BatchConfig

	buffer []event.Event

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

func NewBatchProcessor(writer EventWriter, batchCfg config.BatchConfig) *BatchProcessor {
	p := &BatchProcessor{
		writer:   writer,
		batchCfg: batchCfg,
		buffer:   make([]event.Event, 0, batchCfg.Size),
		done:     make(chan struct{}),
	}

	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process buffers a single event.
func (p *BatchProcessor) Process(ctx context.Context, ev event.Event) error {
	p.mu.Lock()
	p.buffer = append(p.buffer, ev)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	if shouldFlush {
		p.Flush()
	}

	return nil
}

func (p *BatchProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered events to storage. A failed insert drops the
// batch: events are best-effort telemetry and a wedged buffer would stall
// the consumer.
func (p *BatchProcessor) Flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	events := p.buffer
	p.buffer = make([]event.Event, 0, p.batchCfg.Size)
	p.mu.Unlock()

	start := time.Now()
	if err := p.writer.InsertEvents(context.Background(), events); err != nil {
		log.Error().Err(err).Int("count", len(events)).Msg("Failed to insert events")
		return
	}
	log.Info().
		Int("count", len(events)).
		Dur("duration", time.Since(start)).
		Msg("Flushed events to storage")
}

// Stop stops the processor
func (p *BatchProcessor) Stop() {
	p.ticker.Stop()
	close(p.done)
	p.Flush() // Final flush
}
