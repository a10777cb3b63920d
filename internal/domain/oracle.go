package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the state of an oracle request. PENDING → FULFILLED is the
// only transition.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestFulfilled RequestStatus = "FULFILLED"
)

// OracleConfig identifies the oracle job that serves weather requests.
type OracleConfig struct {
	Address string          `json:"address"`
	SpecID  string          `json:"spec_id"`
	Fee     decimal.Decimal `json:"fee"`
}

// Configured reports whether every field required to issue a request is set.
func (c OracleConfig) Configured() bool {
	return c.Address != "" && c.SpecID != "" && !c.Fee.IsNegative()
}

// OracleRequest correlates an issued weather request with its fulfillment.
type OracleRequest struct {
	ID          string          `json:"id"`
	Beneficiary string          `json:"beneficiary"`
	SpecID      string          `json:"spec_id"`
	Query       string          `json:"query"`
	Fee         decimal.Decimal `json:"fee"`
	Status      RequestStatus   `json:"status"`
	IssuedAt    time.Time       `json:"issued_at"`
	FulfilledAt time.Time       `json:"fulfilled_at,omitzero"`
}

// Fulfilled reports whether the request has reached its terminal state.
func (r OracleRequest) Fulfilled() bool {
	return r.Status == RequestFulfilled
}

// OracleJob is what the oracle service receives: enough to run the job and
// call back with the request id.
type OracleJob struct {
	RequestID       string          `json:"requestId"`
	SpecID          string          `json:"specId"`
	CallbackAddress string          `json:"callbackAddress"`
	Fee             decimal.Decimal `json:"fee"`
	Query           string          `json:"query"`
}
