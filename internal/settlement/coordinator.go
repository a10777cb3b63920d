package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/google/uuid"
)

// IDGenerator produces correlation ids. uuid.NewString satisfies it.
type IDGenerator func() string

// OracleDispatcher forwards an issued request to the external oracle service.
// It must not wait for the fulfillment.
type OracleDispatcher interface {
	Dispatch(ctx context.Context, job domain.OracleJob) error
}

// SetOracleConfig replaces the oracle configuration.
func SetOracleConfig(st *State, cfg domain.OracleConfig) error {
	cfg.Address = strings.TrimSpace(cfg.Address)
	cfg.SpecID = strings.TrimSpace(cfg.SpecID)
	if !cfg.Configured() {
		return fmt.Errorf("%w: address, spec id and a non-negative fee are required", domain.ErrOracleNotConfigured)
	}
	st.Oracle = cfg
	return nil
}

// RequestWeather records a pending request for beneficiary and returns it
// along with the RequestIssued event.
func RequestWeather(st *State, ids IDGenerator, beneficiary, query, callbackAddress string, now time.Time) (domain.OracleRequest, []domain.Event, error) {
	if !st.Oracle.Configured() {
		return domain.OracleRequest{}, nil, domain.ErrOracleNotConfigured
	}
	if ids == nil {
		ids = uuid.NewString
	}

	id := ids()
	if _, exists := st.requests[id]; exists {
		return domain.OracleRequest{}, nil, fmt.Errorf("request id %q already issued", id)
	}

	req := &domain.OracleRequest{
		ID:          id,
		Beneficiary: beneficiary,
		SpecID:      st.Oracle.SpecID,
		Query:       query,
		Fee:         st.Oracle.Fee,
		Status:      domain.RequestPending,
		IssuedAt:    now,
	}
	st.requests[id] = req
	st.pending++

	issued := domain.Event{
		Type:            domain.EventRequestIssued,
		OccurredAt:      now,
		SpecID:          req.SpecID,
		Requester:       beneficiary,
		RequestID:       id,
		Fee:             req.Fee,
		CallbackAddress: callbackAddress,
		Query:           query,
	}
	return *req, []domain.Event{issued}, nil
}

// ClaimFulfillment moves a pending request to FULFILLED and returns it.
// Unknown and already fulfilled ids are rejected without any state change.
func ClaimFulfillment(st *State, id string, now time.Time) (domain.OracleRequest, error) {
	req, ok := st.requests[id]
	if !ok || req.Fulfilled() {
		return domain.OracleRequest{}, fmt.Errorf("%w: %q", domain.ErrUnknownOrFulfilledRequest, id)
	}
	req.Status = domain.RequestFulfilled
	req.FulfilledAt = now
	st.pending--
	return *req, nil
}
