package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := generateCode(codeLength)
	require.NoError(t, err)
	assert.Len(t, code, codeLength)

	for _, r := range code {
		assert.True(t, strings.ContainsRune(charset, r), "unexpected rune %q", r)
	}
}

func TestGenerateCodeIndependentCalls(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateCode(codeLength)
		require.NoError(t, err)
		seen[code] = true
	}
	// 100 draws from a 62^6 space colliding would point at a broken
	// random source.
	assert.Greater(t, len(seen), 95)
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"promo", true},
		{"a", true},
		{"A-b_9", true},
		{strings.Repeat("x", 64), true},
		{strings.Repeat("x", 65), false},
		{"", false},
		{"bad code!", false},
		{"héllo", false},
		{"a/b", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, validCode(tt.code), "code %q", tt.code)
	}
}
