package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "referral/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Append(ctx, audit.Event{AccountID: "A", Action: string(audit.EventProfileCreated)}))
	require.NoError(t, s.Append(ctx, audit.Event{AccountID: "B", Action: string(audit.EventProfileCreated)}))
	require.NoError(t, s.Append(ctx, audit.Event{AccountID: "B", Action: string(audit.EventReferralRedeemed), Subject: "A"}))

	events, err := s.ListByAccount(ctx, "B")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(audit.EventReferralRedeemed), events[1].Action)

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "B", string(recent[0].AccountID))

	s.Clear()
	events, err = s.ListByAccount(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, events)
}
