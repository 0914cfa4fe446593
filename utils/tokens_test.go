package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kitabi/kitabibackend/models"
)

const testSecret = "unit-test-secret"

func testUser(role models.Role) *models.User {
	return &models.User{
		ID:       bson.NewObjectID(),
		Username: "reader",
		Email:    "reader@example.com",
		Role:     role,
		Status:   models.StatusActive,
	}
}

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenMaker(testSecret, time.Hour)
	user := testUser(models.RoleUser)

	token, err := tm.IssueForUser(user)
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, string(models.RoleUser), claims.Role)
	assert.False(t, claims.IsAdmin)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestIssueDerivesAdminClaim(t *testing.T) {
	tm := NewTokenMaker(testSecret, time.Hour)

	token, err := tm.IssueForUser(testUser(models.RoleAdmin))
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, string(models.RoleAdmin), claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tm := NewTokenMaker(testSecret, time.Hour)
	other := NewTokenMaker("a-different-secret", time.Hour)

	token, err := other.IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	expired := NewTokenMaker(testSecret, -time.Hour)

	token, err := expired.IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)

	tm := NewTokenMaker(testSecret, time.Hour)
	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestIsExpired(t *testing.T) {
	tm := NewTokenMaker(testSecret, time.Hour)

	fresh, err := tm.IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)
	assert.False(t, tm.IsExpired(fresh))

	stale, err := NewTokenMaker(testSecret, -time.Minute).IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)
	assert.True(t, tm.IsExpired(stale))

	// Undecodable input counts as expired.
	assert.True(t, tm.IsExpired("not-a-token"))
	assert.True(t, tm.IsExpired(""))
}

func TestDecodeUnsafeIgnoresSignature(t *testing.T) {
	other := NewTokenMaker("a-different-secret", time.Hour)
	token, err := other.IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)

	tm := NewTokenMaker(testSecret, time.Hour)
	claims, err := tm.DecodeUnsafe(token)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", claims.Email)
}

func TestRefresh(t *testing.T) {
	tm := NewTokenMaker(testSecret, 7*24*time.Hour)

	// Input token signed with the same secret but a short remaining life.
	oldExp := time.Now().Add(time.Minute)
	input := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:   "64b000000000000000000001",
		Email:    "reader@example.com",
		Username: "reader",
		Role:     "user",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(oldExp),
		},
	})
	tokenStr, err := input.SignedString([]byte(testSecret))
	require.NoError(t, err)

	fresh, err := tm.Refresh(tokenStr)
	require.NoError(t, err)
	assert.NotEqual(t, tokenStr, fresh)

	claims, err := tm.Verify(fresh)
	require.NoError(t, err)
	assert.Equal(t, "64b000000000000000000001", claims.UserID)
	assert.Equal(t, "reader@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.True(t, claims.ExpiresAt.After(oldExp), "refreshed token must expire later")
}

func TestRefreshRejectsInvalidInput(t *testing.T) {
	tm := NewTokenMaker(testSecret, time.Hour)

	_, err := tm.Refresh("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	stale, err := NewTokenMaker(testSecret, -time.Minute).IssueForUser(testUser(models.RoleUser))
	require.NoError(t, err)
	_, err = tm.Refresh(stale)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestExtractTokenFromHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "bearer prefix", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "bare token", header: "abc.def.ghi", want: "abc.def.ghi"},
		{name: "absent", header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractTokenFromHeader(c))
		})
	}
}
