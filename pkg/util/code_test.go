package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAccessCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateAccessCode()
		assert.Len(t, code, 6)
		for _, ch := range code {
			assert.True(t, ch >= '0' && ch <= '9', "code %q contains non-digit", code)
		}
		seen[code] = true
	}

	// Collisions across 100 draws from a million-code space should be rare;
	// seeing only a handful of distinct codes would mean broken randomness.
	assert.Greater(t, len(seen), 90)
}
