package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawMessage is a message read from the fulfillment topic with its broker
// metadata. Commit acknowledges the message once it has been handled.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// FulfillmentMessage is an oracle answer: the request it correlates to and the
// reading in either packed or structured form.
type FulfillmentMessage struct {
	RequestID string `json:"request_id"`
	RawReading
}

// ParseFulfillment decodes a fulfillment message. The request id may also be
// carried in the message key when the body omits it.
func ParseFulfillment(raw RawMessage) (FulfillmentMessage, error) {
	var msg FulfillmentMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return FulfillmentMessage{}, fmt.Errorf("%w: unmarshal fulfillment: %w", ErrMalformedReading, err)
	}
	msg.RequestID = strings.TrimSpace(msg.RequestID)
	if msg.RequestID == "" {
		msg.RequestID = strings.TrimSpace(string(raw.Key))
	}
	if msg.RequestID == "" {
		return FulfillmentMessage{}, fmt.Errorf("%w: fulfillment has no request id", ErrUnknownOrFulfilledRequest)
	}
	return msg, nil
}
