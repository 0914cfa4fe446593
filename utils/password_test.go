package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bcrypt min cost keeps the suite fast; production cost comes from config.
const testCost = 4

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-Pass!", testCost)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, CheckPassword(hash, "s3cret-Pass!"))
	assert.False(t, CheckPassword(hash, "wrong-password"))
	assert.False(t, CheckPassword(hash, ""))
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("same-password", testCost)
	require.NoError(t, err)
	second, err := HashPassword("same-password", testCost)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of the same password must differ")
	assert.True(t, CheckPassword(first, "same-password"))
	assert.True(t, CheckPassword(second, "same-password"))
}

func TestHashPasswordDefaultCost(t *testing.T) {
	// Zero and negative cost fall back to the bcrypt default.
	hash, err := HashPassword("whatever", 0)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "whatever"))
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		wantValid bool
		wantScore int
	}{
		{
			name:      "all character classes",
			password:  "Str0ng!pass",
			wantValid: true,
			wantScore: 5,
		},
		{
			name:      "lowercase only, long enough",
			password:  "secretive",
			wantValid: true,
			wantScore: 2,
		},
		{
			name:      "too short",
			password:  "Ab1!",
			wantValid: false,
			wantScore: 4,
		},
		{
			name:      "digits only",
			password:  "83749382",
			wantValid: true,
			wantScore: 2,
		},
		{
			name:      "common password",
			password:  "password123",
			wantValid: false,
			wantScore: 0,
		},
		{
			name:      "common password uppercased",
			password:  "QWERTY",
			wantValid: false,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePasswordStrength(tt.password)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantScore, result.Score)
			if !tt.wantValid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}
