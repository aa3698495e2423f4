package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "referral/pkg/platform/audit"
)

func TestNewSinkValidatesConfig(t *testing.T) {
	_, err := NewSink(nil, "audit")
	assert.Error(t, err)

	_, err = NewSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	event := audit.Event{
		ID:        "evt-1",
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
		AccountID: "B",
		Action:    string(audit.EventReferralRedeemed),
		Subject:   "A",
		RequestID: "req-1",
		Device:    "Firefox on Linux",
	}
	value, err := jsonPayload(event)
	require.NoError(t, err)

	decoded, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"timestamp":"yesterday"}`))
	assert.Error(t, err)
}
