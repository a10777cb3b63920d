// Package projection keeps a read model of the insurance fund built purely
// from the event stream.
package projection

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/shopspring/decimal"
)

// FundView is a point-in-time snapshot of the fund projection.
type FundView struct {
	Balance        decimal.Decimal            `json:"balance"`
	UpdatedAt      time.Time                  `json:"updated_at"`
	TotalPaid      decimal.Decimal            `json:"total_paid"`
	Payouts        int                        `json:"payouts"`
	ByBeneficiary  map[string]decimal.Decimal `json:"by_beneficiary"`
	RequestsIssued int                        `json:"requests_issued"`
}

// Fund folds insurance events into a FundView.
// It implements pipeline.BatchLoader.
type Fund struct {
	mu       sync.RWMutex
	balance  decimal.Decimal
	updated  time.Time
	seq      uint64
	paid     decimal.Decimal
	payouts  int
	byHolder map[string]decimal.Decimal
	issued   int
}

// NewFund creates a projection starting from balance.
func NewFund(balance decimal.Decimal) *Fund {
	return &Fund{balance: balance, byHolder: make(map[string]decimal.Decimal)}
}

func (f *Fund) LoadBatch(_ context.Context, events []domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		f.apply(e)
	}
	return nil
}

func (f *Fund) apply(e domain.Event) {
	switch e.Type {
	case domain.EventInsuranceFundsUpdated:
		if f.supersedes(e) {
			f.balance = e.Balance
			f.updated = e.OccurredAt
			f.seq = e.Sequence
		}
	case domain.EventPaidInsurance:
		f.paid = f.paid.Add(e.Amount)
		f.payouts++
		f.byHolder[e.Beneficiary] = f.byHolder[e.Beneficiary].Add(e.Amount)
	case domain.EventRequestIssued:
		f.issued++
	}
}

// supersedes reports whether e is a newer balance than the one held. Engine
// sequences order balances; publishers racing each other can deliver them
// out of order with identical timestamps. Unsequenced events fall back to
// OccurredAt.
func (f *Fund) supersedes(e domain.Event) bool {
	if e.Sequence != 0 || f.seq != 0 {
		return e.Sequence > f.seq
	}
	return !e.OccurredAt.Before(f.updated)
}

// Snapshot returns the current view.
func (f *Fund) Snapshot() FundView {
	f.mu.RLock()
	defer f.mu.RUnlock()
	by := make(map[string]decimal.Decimal, len(f.byHolder))
	for k, v := range f.byHolder {
		by[k] = v
	}
	return FundView{
		Balance:        f.balance,
		UpdatedAt:      f.updated,
		TotalPaid:      f.paid,
		Payouts:        f.payouts,
		ByBeneficiary:  by,
		RequestsIssued: f.issued,
	}
}
