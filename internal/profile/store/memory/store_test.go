package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"referral/internal/profile/models"
	"referral/internal/profile/store/storetest"
)

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() storetest.Store { return New() }})
}

func TestInMemoryReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := models.NewProfile("A", "Alina", "ABCDEFGH", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, p))

	p.DisplayName = "mutated by caller"
	found, err := s.FindByAccountID(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "Alina", found.DisplayName)

	found.DisplayName = "mutated again"
	again, err := s.FindByAccountID(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "Alina", again.DisplayName)
}

func TestInMemoryHonorsCancellation(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := models.NewProfile("A", "Alina", "ABCDEFGH", time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, s.Create(ctx, p), context.Canceled)

	exists, err := s.CodeExists(context.Background(), "ABCDEFGH")
	require.NoError(t, err)
	require.False(t, exists, "an abandoned create must leave no trace")
}
