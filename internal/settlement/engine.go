package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const defaultSettleTimeout = 30 * time.Second

// Options configures an Engine. Zero Clock, IDs and SettleTimeout fall back to
// the real clock, random uuids and 30s.
type Options struct {
	MinValue         decimal.Decimal
	DefaultDailyRate decimal.Decimal
	Codec            domain.ReadingCodec
	Thresholds       domain.Thresholds
	CallbackAddress  string
	Clock            clockwork.Clock
	IDs              IDGenerator
	SettleTimeout    time.Duration
}

// PolicySettlement is the outcome of settling one policy against a reading.
type PolicySettlement struct {
	PolicyID    string          `json:"policy_id"`
	Condition   string          `json:"condition"`
	MatchedDays int             `json:"matched_days"`
	Payout      decimal.Decimal `json:"payout"`
}

// Fulfillment is the outcome of one oracle callback.
type Fulfillment struct {
	Request     domain.OracleRequest `json:"request"`
	Reading     domain.Reading       `json:"reading"`
	Settlements []PolicySettlement   `json:"settlements"`
}

// Engine serialises every state transition of the hedge behind one mutex and
// drives decode → evaluate → settle for oracle fulfillments. Emitted events are
// sequenced and returned to the caller, which publishes them.
type Engine struct {
	mu    sync.Mutex
	state *State
	seq   uint64

	codec      domain.ReadingCodec
	thresholds domain.Thresholds
	callback   string
	dailyRate  decimal.Decimal
	clock      clockwork.Clock
	ids        IDGenerator
	settleFor  time.Duration

	funding FundingAdapter
	oracle  OracleDispatcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates an Engine with an empty fund. oracle may be nil, in which
// case issued requests are only recorded and announced via RequestIssued.
func NewEngine(opts Options, funding FundingAdapter, oracle OracleDispatcher, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.NewString
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	return &Engine{
		state:      NewState(opts.MinValue),
		codec:      opts.Codec,
		thresholds: opts.Thresholds,
		callback:   opts.CallbackAddress,
		dailyRate:  opts.DefaultDailyRate,
		clock:      opts.Clock,
		ids:        opts.IDs,
		settleFor:  opts.SettleTimeout,
		funding:    funding,
		oracle:     oracle,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register validates and stores a policy against its deposit. A missing id is
// generated; a zero daily rate takes the configured default.
func (e *Engine) Register(_ context.Context, p domain.Policy, deposited decimal.Decimal) (domain.Policy, []domain.Event, error) {
	if p.DailyRate.IsZero() {
		p.DailyRate = e.dailyRate
	}

	e.mu.Lock()
	if p.ID == "" {
		p.ID = e.ids()
	}
	events, err := Register(e.state, p, deposited, e.now())
	e.stamp(events)
	stored, _ := e.state.Policy(p.ID)
	balance := e.state.Balance
	e.mu.Unlock()

	if err != nil {
		e.metrics.OperationErrors.WithLabelValues("register", domain.ErrorKind(err)).Inc()
		return domain.Policy{}, nil, fmt.Errorf("register policy: %w", err)
	}

	e.metrics.PoliciesRegistered.WithLabelValues(stored.Condition.String()).Inc()
	e.metrics.FundBalance.Set(balance.InexactFloat64())
	e.logger.Info("policy registered",
		"policy_id", stored.ID,
		"holder", stored.Holder,
		"condition", stored.Condition.String(),
		"amount", stored.Amount.String(),
		"coverage_end", stored.CoverageEnd(),
	)
	return stored, events, nil
}

// SetOracleConfig replaces the oracle address, spec id and fee.
func (e *Engine) SetOracleConfig(cfg domain.OracleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := SetOracleConfig(e.state, cfg); err != nil {
		return err
	}
	e.logger.Info("oracle configured", "address", e.state.Oracle.Address, "spec_id", e.state.Oracle.SpecID, "fee", e.state.Oracle.Fee.String())
	return nil
}

// OracleConfig returns the current oracle configuration.
func (e *Engine) OracleConfig() domain.OracleConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Oracle
}

// RequestWeather pays the oracle fee, records a pending request and hands the
// job to the oracle. It returns as soon as the request is recorded; the
// outcome arrives later through Fulfill.
func (e *Engine) RequestWeather(ctx context.Context, beneficiary, query string) (domain.OracleRequest, []domain.Event, error) {
	e.mu.Lock()
	req, events, err := e.requestLocked(ctx, beneficiary, query)
	e.stamp(events)
	pending := e.state.PendingRequests()
	e.mu.Unlock()

	if err != nil {
		e.metrics.OperationErrors.WithLabelValues("request", domain.ErrorKind(err)).Inc()
		return domain.OracleRequest{}, nil, fmt.Errorf("request weather: %w", err)
	}
	e.metrics.PendingRequests.Set(float64(pending))
	e.logger.Info("oracle request issued", "request_id", req.ID, "beneficiary", beneficiary, "spec_id", req.SpecID)

	e.dispatch(ctx, req)
	return req, events, nil
}

func (e *Engine) requestLocked(ctx context.Context, beneficiary, query string) (domain.OracleRequest, []domain.Event, error) {
	if !e.state.Oracle.Configured() {
		return domain.OracleRequest{}, nil, domain.ErrOracleNotConfigured
	}
	id := e.ids()
	if fee := e.state.Oracle.Fee; fee.IsPositive() {
		t := domain.Transfer{Recipient: e.state.Oracle.Address, Amount: fee, Reference: domain.FeeReference(id)}
		if err := e.funding.Transfer(ctx, t); err != nil {
			return domain.OracleRequest{}, nil, fmt.Errorf("%w: oracle fee: %w", domain.ErrTransferFailed, err)
		}
	}
	return RequestWeather(e.state, func() string { return id }, beneficiary, query, e.callback, e.now())
}

func (e *Engine) dispatch(ctx context.Context, req domain.OracleRequest) {
	if e.oracle == nil {
		return
	}
	job := domain.OracleJob{
		RequestID:       req.ID,
		SpecID:          req.SpecID,
		CallbackAddress: e.callback,
		Fee:             req.Fee,
		Query:           req.Query,
	}
	if err := e.oracle.Dispatch(ctx, job); err != nil {
		// The request stays pending; the oracle may still pick it up.
		e.metrics.OracleDispatches.WithLabelValues("error").Inc()
		e.logger.Warn("oracle dispatch failed", "request_id", req.ID, "error", err)
		return
	}
	e.metrics.OracleDispatches.WithLabelValues("success").Inc()
}

// Fulfill consumes the pending request id and settles every live policy of its
// beneficiary against the reading. The request is consumed even when the
// reading is malformed or a payout fails; events for payouts already made are
// returned alongside such an error. Payouts run detached from ctx's
// cancellation: once the request is consumed, a caller that goes away must not
// abandon what the fund owes.
func (e *Engine) Fulfill(ctx context.Context, requestID string, raw domain.RawReading) (Fulfillment, []domain.Event, error) {
	e.mu.Lock()
	result, events, err := e.fulfillLocked(ctx, requestID, raw)
	e.stamp(events)
	balance := e.state.Balance
	pending := e.state.PendingRequests()
	e.mu.Unlock()

	e.metrics.PendingRequests.Set(float64(pending))
	e.metrics.FundBalance.Set(balance.InexactFloat64())
	for _, s := range result.Settlements {
		if s.Payout.IsPositive() {
			e.metrics.Payouts.Inc()
			e.metrics.PayoutAmount.Add(s.Payout.InexactFloat64())
		}
	}

	if err != nil {
		kind := domain.ErrorKind(err)
		e.metrics.OperationErrors.WithLabelValues("fulfill", kind).Inc()
		if kind == domain.KindResource {
			e.logger.Error("settlement bookkeeping failure", "request_id", requestID, "error", err)
		}
		return result, events, fmt.Errorf("fulfill %s: %w", requestID, err)
	}

	e.logger.Info("oracle request fulfilled",
		"request_id", requestID,
		"beneficiary", result.Request.Beneficiary,
		"policies", len(result.Settlements),
	)
	return result, events, nil
}

func (e *Engine) fulfillLocked(ctx context.Context, requestID string, raw domain.RawReading) (Fulfillment, []domain.Event, error) {
	now := e.now()
	req, err := ClaimFulfillment(e.state, requestID, now)
	if err != nil {
		return Fulfillment{}, nil, err
	}
	result := Fulfillment{Request: req}

	reading, err := e.codec.Resolve(raw)
	if err != nil {
		return result, nil, err
	}
	result.Reading = reading

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settleFor)
	defer cancel()

	var events []domain.Event
	for _, p := range e.state.PoliciesOf(req.Beneficiary) {
		if p.Exhausted() {
			continue
		}
		matched := e.thresholds.Evaluate(reading, p.Condition)
		paid, settled, err := Settle(settleCtx, e.state, e.funding, req.ID, p.ID, matched, now)
		if err != nil {
			return result, events, err
		}
		events = append(events, settled...)
		result.Settlements = append(result.Settlements, PolicySettlement{
			PolicyID:    p.ID,
			Condition:   p.Condition.String(),
			MatchedDays: matched,
			Payout:      paid,
		})
	}
	return result, events, nil
}

// Balance returns the current fund balance.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Balance
}

// Policy returns a registered policy by id.
func (e *Engine) Policy(id string) (domain.Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Policy(id)
}

// Request returns an oracle request by id, pending or fulfilled.
func (e *Engine) Request(id string) (domain.OracleRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Request(id)
}

// stamp assigns stream sequence numbers. Callers hold e.mu.
func (e *Engine) stamp(events []domain.Event) {
	for i := range events {
		e.seq++
		events[i].Sequence = e.seq
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}
