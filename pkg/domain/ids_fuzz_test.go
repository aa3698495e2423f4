package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAccountID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("A")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("'; DROP TABLE profiles;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("acct\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(id.String()) {
			t.Errorf("accepted invalid utf-8: %q", input)
		}
		if len(id) == 0 || len(id) > MaxAccountIDLength {
			t.Errorf("accepted out-of-range length %d", len(id))
		}
		roundTrip, err := ParseAccountID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}
