package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
	"github.com/couchcryptid/weather-hedge-service/internal/pipeline"
	"github.com/couchcryptid/weather-hedge-service/internal/projection"
	"github.com/couchcryptid/weather-hedge-service/internal/settlement"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockProcessor struct {
	events []domain.Event
	err    error
}

func (m *mockProcessor) Process(_ context.Context, _ domain.RawMessage) ([]domain.Event, error) {
	return m.events, m.err
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.Event
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) Loaded() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.loaded...)
}

type noFunds struct{}

func (noFunds) Transfer(context.Context, domain.Transfer) error { return nil }

var at = time.Date(2021, time.April, 16, 12, 0, 0, 0, time.UTC)

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func run(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	event := domain.FundsUpdated(decimal.NewFromInt(3), at)
	ext := &mockExtractor{batches: [][]domain.RawMessage{{{Value: []byte(`{}`)}}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockProcessor{events: []domain.Event{event}}, ldr, slog.Default(), metrics, 10)
	run(t, p, 300*time.Millisecond)

	assert.Len(t, ldr.Loaded(), 1)
	assert.Error(t, p.CheckReadiness(context.Background()), "stopped pipeline is not ready")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FulfillmentsConsumed), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.EventsProduced), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockProcessor{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.Loaded())
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_CheckReadiness_WhileRunning(t *testing.T) {
	p := pipeline.New(&mockExtractor{}, &mockProcessor{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10)
	require.Error(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Ready before any fulfillment has arrived.
	require.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ProcessErrorIsCountedAndCommitted(t *testing.T) {
	var commits atomic.Int64
	raw := domain.RawMessage{
		Topic:  "oracle-fulfillments",
		Value:  []byte(`{}`),
		Commit: func(context.Context) error { commits.Add(1); return nil },
	}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	proc := &mockProcessor{err: domain.ErrUnknownOrFulfilledRequest}
	p := pipeline.New(ext, proc, ldr, slog.Default(), metrics, 10)
	run(t, p, 300*time.Millisecond)

	assert.Empty(t, ldr.Loaded())
	assert.Equal(t, int64(1), commits.Load())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FulfillmentErrors.WithLabelValues(domain.KindCorrelation)), 1e-9)
}

func TestPipeline_Run_PartialEventsAreLoaded(t *testing.T) {
	paid := domain.PaidInsurance("0xa", "p-1", decimal.NewFromInt(1), at)
	ext := &mockExtractor{batches: [][]domain.RawMessage{{{Value: []byte(`{}`)}}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	proc := &mockProcessor{events: []domain.Event{paid}, err: domain.ErrTransferFailed}
	p := pipeline.New(ext, proc, ldr, slog.Default(), metrics, 10)
	run(t, p, 300*time.Millisecond)

	require.Len(t, ldr.Loaded(), 1)
	assert.Equal(t, domain.EventPaidInsurance, ldr.Loaded()[0].Type)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FulfillmentErrors.WithLabelValues(domain.KindResource)), 1e-9)
}

func TestPipeline_Run_RetriesLoadBeforeCommit(t *testing.T) {
	var committed atomic.Bool
	raw := domain.RawMessage{
		Value:  []byte(`{}`),
		Commit: func(context.Context) error { committed.Store(true); return nil },
	}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	ldr := &mockLoader{failures: 1}

	proc := &mockProcessor{events: []domain.Event{domain.FundsUpdated(decimal.Zero, at)}}
	p := pipeline.New(ext, proc, ldr, slog.Default(), newTestMetrics(), 10)
	run(t, p, time.Second)

	assert.Len(t, ldr.Loaded(), 1)
	assert.True(t, committed.Load())
}

// A sink outage must not replay the batch into sinks that already took it:
// the fund projection would count the payout again.
func TestPipeline_Run_RetriesOnlyFailedSinks(t *testing.T) {
	var commits atomic.Int64
	raw := domain.RawMessage{
		Value:  []byte(`{}`),
		Commit: func(context.Context) error { commits.Add(1); return nil },
	}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{raw}}}
	paid := domain.PaidInsurance("0xa", "p-1", decimal.NewFromInt(1), at)
	paid.Sequence = 1

	broker := &mockLoader{failures: 2}
	journal := &mockLoader{}
	fund := projection.NewFund(decimal.NewFromInt(1))

	proc := &mockProcessor{events: []domain.Event{paid}}
	p := pipeline.New(ext, proc, pipeline.FanOut{broker, journal, fund}, slog.Default(), newTestMetrics(), 10)
	run(t, p, 2*time.Second)

	assert.Len(t, broker.Loaded(), 1)
	assert.Len(t, journal.Loaded(), 1)
	view := fund.Snapshot()
	assert.Equal(t, 1, view.Payouts)
	assert.True(t, view.TotalPaid.Equal(decimal.NewFromInt(1)), "total paid %s", view.TotalPaid)
	assert.Equal(t, int64(1), commits.Load())
}

func TestFanOut_LoadsAllAndJoinsErrors(t *testing.T) {
	ok := &mockLoader{}
	failing := &mockLoader{failures: 1}
	events := []domain.Event{domain.FundsUpdated(decimal.NewFromInt(1), at)}

	err := pipeline.FanOut{failing, ok}.LoadBatch(context.Background(), events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Len(t, ok.Loaded(), 1)

	require.NoError(t, pipeline.FanOut{failing, ok}.LoadBatch(context.Background(), events))
}

func TestFulfillmentProcessor_SettlesThroughEngine(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at)
	engine := settlement.NewEngine(settlement.Options{
		MinValue:   decimal.NewFromInt(1),
		Codec:      domain.ReadingCodec{Bias: domain.DefaultTemperatureBias},
		Thresholds: domain.Thresholds{Frost: 0, Drought: 35},
		Clock:      clock,
		IDs:        func() string { return "req-1" },
	}, noFunds{}, nil, slog.Default(), newTestMetrics())

	policy := domain.Policy{
		ID:        "p-1",
		Holder:    "0xa",
		Start:     1617973366,
		Duration:  604800,
		Amount:    decimal.NewFromInt(1),
		Condition: domain.ConditionFrost,
		DailyRate: decimal.RequireFromString("0.2"),
	}
	_, _, err := engine.Register(context.Background(), policy, policy.Amount)
	require.NoError(t, err)
	require.NoError(t, engine.SetOracleConfig(domain.OracleConfig{Address: "0xoracle", SpecID: "job"}))
	_, _, err = engine.RequestWeather(context.Background(), "0xa", "q")
	require.NoError(t, err)

	proc := pipeline.NewProcessor(engine, slog.Default())
	raw := domain.RawMessage{Value: []byte(`{"request_id":"req-1","packed":"263273278253271272267"}`)}

	events, err := proc.Process(context.Background(), raw)
	require.NoError(t, err)
	want := []domain.Event{
		domain.PaidInsurance("0xa", "p-1", decimal.NewFromInt(1), at),
		domain.FundsUpdated(decimal.Zero, at),
	}
	// Registration and the request took sequences 1 and 2.
	want[0].Sequence, want[1].Sequence = 3, 4
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	_, err = proc.Process(context.Background(), raw)
	require.ErrorIs(t, err, domain.ErrUnknownOrFulfilledRequest)

	_, err = proc.Process(context.Background(), domain.RawMessage{Value: []byte("not json")})
	require.ErrorIs(t, err, domain.ErrMalformedReading)
}
