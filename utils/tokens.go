package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kitabi/kitabibackend/models"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is not valid")
)

// Claims is the denormalized identity snapshot embedded in every token, so
// middleware never needs a database round-trip. isAdmin is derived from the
// role at issue time; the role field is authoritative.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenMaker signs and verifies HS256 identity tokens with a fixed secret
// and expiry window.
type TokenMaker struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenMaker(secret string, ttl time.Duration) *TokenMaker {
	return &TokenMaker{secret: []byte(secret), ttl: ttl}
}

// IssueForUser snapshots a user's identity into a fresh token.
func (m *TokenMaker) IssueForUser(u *models.User) (string, error) {
	return m.issue(&Claims{
		UserID:   u.ID.Hex(),
		Email:    u.Email,
		Username: u.Username,
		IsAdmin:  u.IsAdmin(),
		Role:     string(u.Role),
	})
}

func (m *TokenMaker) issue(claims *Claims) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks the signature and expiry and returns the claims.
func (m *TokenMaker) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// DecodeUnsafe parses claims without checking the signature. Only used to
// pre-check expiry cheaply; never trust its output for authorization.
func (m *TokenMaker) DecodeUnsafe(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IsExpired treats an undecodable token as expired.
func (m *TokenMaker) IsExpired(tokenStr string) bool {
	claims, err := m.DecodeUnsafe(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return time.Now().After(claims.ExpiresAt.Time)
}

// Refresh verifies the token and reissues it with the same identity and a
// fresh expiry. An invalid or expired input is refused.
func (m *TokenMaker) Refresh(tokenStr string) (string, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return "", err
	}
	claims.IssuedAt = nil
	claims.ExpiresAt = nil
	return m.issue(claims)
}

// ExtractTokenFromHeader pulls the token out of the Authorization header.
// A "Bearer " prefix is stripped; otherwise the whole value is the token.
// Returns "" when the header is absent.
func ExtractTokenFromHeader(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
