package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/couchcryptid/weather-hedge-service/internal/settlement"
)

// Fulfiller settles an oracle answer. Implemented by *settlement.Engine.
type Fulfiller interface {
	Fulfill(ctx context.Context, requestID string, raw domain.RawReading) (settlement.Fulfillment, []domain.Event, error)
}

// FulfillmentProcessor implements Processor by handing decoded fulfillment
// messages to the settlement engine.
type FulfillmentProcessor struct {
	engine Fulfiller
	logger *slog.Logger
}

// NewProcessor creates a FulfillmentProcessor.
func NewProcessor(engine Fulfiller, logger *slog.Logger) *FulfillmentProcessor {
	return &FulfillmentProcessor{engine: engine, logger: logger}
}

func (p *FulfillmentProcessor) Process(ctx context.Context, raw domain.RawMessage) ([]domain.Event, error) {
	msg, err := domain.ParseFulfillment(raw)
	if err != nil {
		return nil, err
	}

	result, events, err := p.engine.Fulfill(ctx, msg.RequestID, msg.RawReading)
	if err != nil {
		return events, err
	}

	for _, s := range result.Settlements {
		p.logger.Debug("policy settled",
			"request_id", msg.RequestID,
			"policy_id", s.PolicyID,
			"matched_days", s.MatchedDays,
			"payout", s.Payout.String(),
		)
	}
	return events, nil
}
