package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a domain event on the event stream.
type EventType string

const (
	EventInsuranceFundsUpdated EventType = "insurance_funds_updated"
	EventPaidInsurance         EventType = "paid_insurance"
	EventRequestIssued         EventType = "request_issued"
)

// Event is one entry of the observable event stream. Only the fields relevant
// to Type are populated. Sequence is assigned by the engine and increases with
// every emitted event; zero means unsequenced.
type Event struct {
	Type       EventType `json:"type"`
	Sequence   uint64    `json:"sequence,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// insurance_funds_updated
	Balance decimal.Decimal `json:"balance"`

	// paid_insurance
	Beneficiary string          `json:"beneficiary,omitempty"`
	Amount      decimal.Decimal `json:"amount,omitzero"`
	PolicyID    string          `json:"policy_id,omitempty"`

	// request_issued
	SpecID          string          `json:"spec_id,omitempty"`
	Requester       string          `json:"requester,omitempty"`
	RequestID       string          `json:"request_id,omitempty"`
	Fee             decimal.Decimal `json:"fee,omitzero"`
	CallbackAddress string          `json:"callback_address,omitempty"`
	Query           string          `json:"query,omitempty"`
}

// Key returns the partition key for the event: the request id for oracle
// events, the beneficiary for payouts, and the event type otherwise.
func (e Event) Key() string {
	switch {
	case e.RequestID != "":
		return e.RequestID
	case e.Beneficiary != "":
		return e.Beneficiary
	}
	return string(e.Type)
}

// FundsUpdated builds an insurance_funds_updated event.
func FundsUpdated(balance decimal.Decimal, at time.Time) Event {
	return Event{Type: EventInsuranceFundsUpdated, Balance: balance, OccurredAt: at}
}

// PaidInsurance builds a paid_insurance event.
func PaidInsurance(beneficiary, policyID string, amount decimal.Decimal, at time.Time) Event {
	return Event{Type: EventPaidInsurance, Beneficiary: beneficiary, PolicyID: policyID, Amount: amount, OccurredAt: at}
}
