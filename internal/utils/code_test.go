package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewTicketCode()
		require.NoError(t, err)
		assert.Len(t, code, TicketCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q in %s", r, code)
		}
		seen[code] = true
	}
	// 200 draws from a 36^8 space should not all collide.
	assert.Greater(t, len(seen), 1)
}
