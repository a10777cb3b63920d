package settlement

import (
	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/shopspring/decimal"
)

// State is the complete mutable state of the hedge: the pooled fund, the
// registered policies, the oracle correlation table and the oracle
// configuration. Every operation in this package takes it explicitly; callers
// are responsible for serialising access (see Engine).
type State struct {
	MinValue decimal.Decimal
	Balance  decimal.Decimal
	Oracle   domain.OracleConfig

	policies map[string]*domain.Policy
	holders  map[string][]string // holder -> policy ids in registration order
	requests map[string]*domain.OracleRequest
	pending  int
}

// NewState returns an empty state with the given registration minimum.
func NewState(minValue decimal.Decimal) *State {
	return &State{
		MinValue: minValue,
		Balance:  decimal.Zero,
		policies: make(map[string]*domain.Policy),
		holders:  make(map[string][]string),
		requests: make(map[string]*domain.OracleRequest),
	}
}

// Policy returns a copy of the policy with the given id.
func (s *State) Policy(id string) (domain.Policy, bool) {
	p, ok := s.policies[id]
	if !ok {
		return domain.Policy{}, false
	}
	return *p, true
}

// PoliciesOf returns copies of the holder's policies in registration order.
func (s *State) PoliciesOf(holder string) []domain.Policy {
	ids := s.holders[holder]
	out := make([]domain.Policy, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.policies[id])
	}
	return out
}

// Request returns a copy of the oracle request with the given id.
func (s *State) Request(id string) (domain.OracleRequest, bool) {
	r, ok := s.requests[id]
	if !ok {
		return domain.OracleRequest{}, false
	}
	return *r, true
}

// PendingRequests returns the number of requests awaiting fulfillment.
func (s *State) PendingRequests() int {
	return s.pending
}
