package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "referral/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the parsing invariant:
// "account ids are non-empty, bounded, printable tokens"
func TestParseAccountID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects whitespace only", func(t *testing.T) {
		_, err := ParseAccountID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts opaque identifiers", func(t *testing.T) {
		for _, in := range []string{"A", "auth0|5f7c8ec7c33c6c004bbafe82", "550e8400-e29b-41d4-a716-446655440000"} {
			id, err := ParseAccountID(in)
			require.NoError(t, err, in)
			assert.Equal(t, AccountID(in), id)
		}
	})
}

// TestParseAccountID_SecurityInvariants validates rejection of hostile input at API entry points.
func TestParseAccountID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Null byte injection", "acct\x00admin", true},
		{"Oversized input", strings.Repeat("a", MaxAccountIDLength+1), true},
		{"Unicode zero-width space", "acct\u200Bid", true},
		{"Embedded space", "acct id", true},
		{"Newline", "acct\nid", true},
		{"Invalid utf-8", string([]byte{0xff, 0xfe}), true},

		{"Max length", strings.Repeat("a", MaxAccountIDLength), false},
		{"SQL-ish but printable", "';DROP", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
