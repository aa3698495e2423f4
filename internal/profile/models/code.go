package models

import "strings"

// CodeAlphabet is the referral code alphabet: uppercase alphanumerics without
// 0, O, 1, I and L, which are easily confused when read aloud or retyped.
const CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// CodeLength is the fixed length of every referral code.
const CodeLength = 8

// ReferralCode is a short, shareable token minted once per profile.
type ReferralCode string

// NormalizeCode canonicalizes user-typed input (trim, uppercase).
// The result may still be invalid; check Valid.
func NormalizeCode(raw string) ReferralCode {
	return ReferralCode(strings.ToUpper(strings.TrimSpace(raw)))
}

// Valid reports whether c has the fixed length and only alphabet symbols.
func (c ReferralCode) Valid() bool {
	if len(c) != CodeLength {
		return false
	}
	for i := 0; i < len(c); i++ {
		if strings.IndexByte(CodeAlphabet, c[i]) < 0 {
			return false
		}
	}
	return true
}

func (c ReferralCode) String() string {
	return string(c)
}
