package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFulfillment(t *testing.T) {
	msg, err := ParseFulfillment(RawMessage{Value: []byte(`{"request_id":" req-1 ","packed":"263273278253271272267"}`)})
	require.NoError(t, err)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.Equal(t, "263273278253271272267", msg.Packed)
	assert.Empty(t, msg.Temperatures)

	msg, err = ParseFulfillment(RawMessage{Key: []byte("req-2"), Value: []byte(`{"temperatures":[1,2,3,4,5,6,7]}`)})
	require.NoError(t, err)
	assert.Equal(t, "req-2", msg.RequestID)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, msg.Temperatures)
}

func TestParseFulfillment_Invalid(t *testing.T) {
	_, err := ParseFulfillment(RawMessage{Value: []byte("not json")})
	require.ErrorIs(t, err, ErrMalformedReading)

	_, err = ParseFulfillment(RawMessage{Value: []byte(`{"packed":"1"}`)})
	require.ErrorIs(t, err, ErrUnknownOrFulfilledRequest)
}
