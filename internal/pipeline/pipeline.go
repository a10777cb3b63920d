package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
)

// BatchExtractor reads up to batchSize fulfillment messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Processor applies one fulfillment message and returns the events it caused.
// Events may accompany an error when the message was partly applied.
type Processor interface {
	Process(ctx context.Context, raw domain.RawMessage) ([]domain.Event, error)
}

// BatchLoader writes domain events to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.Event) error
}

// FanOut loads every batch into each loader in order and joins their errors.
// The pipeline retries only the members that failed.
type FanOut []BatchLoader

func (f FanOut) LoadBatch(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, l := range f {
		if err := l.LoadBatch(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract-process-load loop for oracle fulfillments.
type Pipeline struct {
	extractor BatchExtractor
	processor Processor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	running   atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, p Processor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		processor: p,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness fails while the consume loop is not running. Fulfillments
// may legitimately never arrive, so readiness does not wait for one.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("fulfillment pipeline is not running")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-process-load cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.FulfillmentsConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	events := p.process(ctx, batch)
	if !p.load(ctx, events, backoff) {
		return false
	}

	for _, raw := range batch {
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// process applies each message in order and collects the emitted events.
// Failed messages are logged and counted; they are committed with the batch
// since the engine has already consumed their request.
func (p *Pipeline) process(ctx context.Context, batch []domain.RawMessage) []domain.Event {
	var out []domain.Event
	for _, raw := range batch {
		events, err := p.processor.Process(ctx, raw)
		out = append(out, events...)
		if err == nil {
			continue
		}
		kind := domain.ErrorKind(err)
		p.metrics.FulfillmentErrors.WithLabelValues(kind).Inc()
		level := slog.LevelWarn
		if kind == domain.KindResource || kind == domain.KindInternal {
			level = slog.LevelError
		}
		p.logger.Log(ctx, level, "fulfillment failed",
			"error", err,
			"kind", kind,
			"events", len(events),
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
	}
	return out
}

// load writes events, retrying with backoff: the engine state behind them has
// already changed, so they cannot be regenerated by re-reading the batch.
// A FanOut member that accepted the batch is not handed it again.
// Returns false if the pipeline should stop.
func (p *Pipeline) load(ctx context.Context, events []domain.Event, backoff *time.Duration) bool {
	if len(events) == 0 {
		return true
	}
	pending := []BatchLoader{p.loader}
	if f, ok := p.loader.(FanOut); ok {
		pending = append([]BatchLoader(nil), f...)
	}
	for {
		failed := pending[:0]
		for _, l := range pending {
			if err := l.LoadBatch(ctx, events); err != nil {
				p.logger.Error("load batch failed", "error", err, "batch_size", len(events))
				failed = append(failed, l)
			}
		}
		if len(failed) == 0 {
			break
		}
		pending = failed
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}
	*backoff = initialBackoff
	p.metrics.EventsProduced.Add(float64(len(events)))
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances it. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
