package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/weather-hedge-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Payout computes matchedDays × DailyRate capped by the policy's remaining
// insured amount.
func Payout(p domain.Policy, matchedDays int) decimal.Decimal {
	if matchedDays <= 0 {
		return decimal.Zero
	}
	due := p.DailyRate.Mul(decimal.NewFromInt(int64(matchedDays)))
	return decimal.Min(due, p.Remaining())
}

// Settle pays out the policy for matchedDays as the outcome of requestID. A
// zero payout, including one against an exhausted policy, is a valid outcome
// and returns no events.
func Settle(ctx context.Context, st *State, funding FundingAdapter, requestID, policyID string, matchedDays int, now time.Time) (decimal.Decimal, []domain.Event, error) {
	p, ok := st.policies[policyID]
	if !ok {
		return decimal.Zero, nil, fmt.Errorf("settle: unknown policy %q", policyID)
	}

	payout := Payout(*p, matchedDays)
	if !payout.IsPositive() {
		return decimal.Zero, nil, nil
	}

	t := domain.Transfer{
		Recipient: p.Holder,
		Amount:    payout,
		Reference: domain.PayoutReference(requestID, p.ID),
	}
	events, err := Pay(ctx, st, funding, t, p.ID, now)
	if err != nil {
		return decimal.Zero, nil, err
	}
	p.Paid = p.Paid.Add(payout)
	return payout, events, nil
}
