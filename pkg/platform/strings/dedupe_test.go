package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimKeepsOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "trims whitespace",
			input:    []string{"  acct-a  ", "acct-b  "},
			expected: []string{"acct-a", "acct-b"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"acct-b", "acct-a", "acct-b"},
			expected: []string{"acct-b", "acct-a"},
		},
		{
			name:     "drops blanks",
			input:    []string{"", "  ", "acct-a"},
			expected: []string{"acct-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, dedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList([]string{"acct-a, acct-b", "acct-c", "acct-a,,"}, ",")
	assert.Equal(t, []string{"acct-a", "acct-b", "acct-c"}, got)
	assert.Empty(t, SplitList(nil, ","))
}
