package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"exactly at limit", strings.Repeat("a", MaxPasswordBytes)},
		{"beyond limit", strings.Repeat("b", 100)},
		{"empty password", ""},
		{"unicode password", "pässwörd-密码"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$2"), "should be a bcrypt hash")
			assert.True(t, h.Verify(tt.password, hash))
		})
	}
}

func TestHasher_WrongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong-password", "Correct-Password", "correct-password ", "", "correct-passwor"} {
		assert.False(t, h.Verify(wrong, hash), "%q must not verify", wrong)
	}
}

func TestHasher_TruncatesAt72Bytes(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	prefix := strings.Repeat("x", MaxPasswordBytes)

	hash, err := h.Hash(prefix + "-tail-one")
	require.NoError(t, err)

	assert.True(t, h.Verify(prefix+"-another-tail", hash), "bytes past the limit are ignored")
	assert.True(t, h.Verify(prefix, hash))
	assert.False(t, h.Verify(prefix[:MaxPasswordBytes-1]+"y", hash), "a difference inside the limit matters")
}

func TestHasher_MalformedHashIsMismatch(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	for _, bad := range []string{"", "not-a-hash", "$2a$10$short", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"} {
		assert.False(t, h.Verify("anything", bad))
	}
}

func TestHasher_UniqueSalts(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same", a))
	assert.True(t, h.Verify("same", b))
}

func TestNewHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).Cost)
	assert.Equal(t, bcrypt.MinCost, NewHasher(2).Cost)
	assert.Equal(t, bcrypt.MaxCost, NewHasher(99).Cost)
	assert.Equal(t, 11, NewHasher(11).Cost)
}
