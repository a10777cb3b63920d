package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/shopspring/decimal"
)

// FundingAdapter moves value out of the pooled fund.
type FundingAdapter interface {
	Transfer(ctx context.Context, t domain.Transfer) error
}

// Register stores a new policy and adds its deposit to the fund. The policy
// must carry its id. Nothing is mutated when an error is returned.
func Register(st *State, p domain.Policy, deposited decimal.Decimal, now time.Time) ([]domain.Event, error) {
	if !deposited.Equal(p.Amount) {
		return nil, fmt.Errorf("%w: deposited %s, insured %s", domain.ErrAmountMismatch, deposited, p.Amount)
	}
	if p.Amount.LessThan(st.MinValue) {
		return nil, fmt.Errorf("%w: %s < %s", domain.ErrBelowMinimum, p.Amount, st.MinValue)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, exists := st.policies[p.ID]; exists || p.ID == "" {
		return nil, fmt.Errorf("%w: duplicate or empty policy id %q", domain.ErrInvalidPolicy, p.ID)
	}

	p.Paid = decimal.Zero
	p.RegisteredAt = now
	st.policies[p.ID] = &p
	st.holders[p.Holder] = append(st.holders[p.Holder], p.ID)
	st.Balance = st.Balance.Add(deposited)

	return []domain.Event{domain.FundsUpdated(st.Balance, now)}, nil
}

// Pay transfers t.Amount from the fund to t.Recipient on behalf of policyID.
// The balance is only decremented once the transfer has succeeded.
func Pay(ctx context.Context, st *State, funding FundingAdapter, t domain.Transfer, policyID string, now time.Time) ([]domain.Event, error) {
	if t.Amount.GreaterThan(st.Balance) {
		return nil, fmt.Errorf("%w: payout %s exceeds balance %s", domain.ErrInsufficientFunds, t.Amount, st.Balance)
	}
	if err := funding.Transfer(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: pay %s to %s: %w", domain.ErrTransferFailed, t.Amount, t.Recipient, err)
	}

	st.Balance = st.Balance.Sub(t.Amount)

	return []domain.Event{
		domain.PaidInsurance(t.Recipient, policyID, t.Amount, now),
		domain.FundsUpdated(st.Balance, now),
	}, nil
}
