package domain

import "github.com/shopspring/decimal"

// Transfer moves Amount out of the fund to Recipient. Reference identifies
// the obligation being paid, so a gateway can discard a repeated attempt.
type Transfer struct {
	Recipient string
	Amount    decimal.Decimal
	Reference string
}

// FeeReference names the oracle fee paid for a request.
func FeeReference(requestID string) string {
	return "fee/" + requestID
}

// PayoutReference names the payout of one policy settled by a request.
func PayoutReference(requestID, policyID string) string {
	return "payout/" + requestID + "/" + policyID
}
