package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kitabi/kitabibackend/apperr"
	"github.com/kitabi/kitabibackend/models"
	"github.com/kitabi/kitabibackend/utils"
)

const (
	ctxClaimsKey        = "authClaims"
	ctxAuthenticatedKey = "isAuthenticated"
)

// ClaimsFrom returns the verified identity attached by the gateway.
func ClaimsFrom(c *gin.Context) (*utils.Claims, bool) {
	v, ok := c.Get(ctxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok
}

// IsAuthenticated reports whether OptionalAuth (or a stricter variant)
// attached a verified identity to this request.
func IsAuthenticated(c *gin.Context) bool {
	return c.GetBool(ctxAuthenticatedKey)
}

// Gateway builds the per-request authorization middleware variants. Every
// variant runs the same fixed order: token presence, then signature/expiry,
// then role or ownership, short-circuiting on the first failure.
type Gateway struct {
	tm  *utils.TokenMaker
	env string
	log *slog.Logger
}

func NewGateway(tm *utils.TokenMaker, env string, log *slog.Logger) *Gateway {
	return &Gateway{tm: tm, env: env, log: log}
}

// RequireAuth admits any request carrying a valid, non-expired token.
func (g *Gateway) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := g.authenticate(c)
		if !ok {
			return
		}
		g.attach(c, claims)
		c.Next()
	}
}

// RequireAdmin additionally requires administrative privilege.
func (g *Gateway) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := g.authenticate(c)
		if !ok {
			return
		}
		if !isAdmin(claims) {
			g.deny(c, apperr.New(apperr.Authorization, "Admin access required"))
			return
		}
		g.attach(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present but never
// rejects; downstream handlers branch on IsAuthenticated.
func (g *Gateway) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxAuthenticatedKey, false)
		token := utils.ExtractTokenFromHeader(c)
		if token != "" && !g.tm.IsExpired(token) {
			if claims, err := g.tm.Verify(token); err == nil {
				g.attach(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole admits the listed roles; admins always pass.
func (g *Gateway) RequireRole(allowedRoles ...models.Role) gin.HandlerFunc {
	names := make([]string, len(allowedRoles))
	for i, r := range allowedRoles {
		names[i] = string(r)
	}
	message := "Access denied. Required role: " + strings.Join(names, ", ")

	return func(c *gin.Context) {
		claims, ok := g.authenticate(c)
		if !ok {
			return
		}
		if !isAdmin(claims) && !roleAllowed(claims.Role, allowedRoles) {
			g.deny(c, apperr.New(apperr.Authorization, message))
			return
		}
		g.attach(c, claims)
		c.Next()
	}
}

// OwnerOrAdmin admits admins, or callers whose userId matches the resource
// owner id taken from the route parameter (or the request body as fallback).
func (g *Gateway) OwnerOrAdmin(idField string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := g.authenticate(c)
		if !ok {
			return
		}
		if isAdmin(claims) {
			g.attach(c, claims)
			c.Next()
			return
		}

		ownerID := c.Param(idField)
		if ownerID == "" {
			ownerID = ownerIDFromBody(c, idField)
		}
		if ownerID == "" || ownerID != claims.UserID {
			g.deny(c, apperr.New(apperr.Authorization,
				"Access denied. You can only access your own resources."))
			return
		}
		g.attach(c, claims)
		c.Next()
	}
}

// authenticate runs the presence and signature/expiry checks shared by every
// rejecting variant.
func (g *Gateway) authenticate(c *gin.Context) (*utils.Claims, bool) {
	token := utils.ExtractTokenFromHeader(c)
	if token == "" {
		g.deny(c, apperr.New(apperr.Authentication, "Access denied. No token provided."))
		return nil, false
	}
	if g.tm.IsExpired(token) {
		g.deny(c, apperr.New(apperr.Authentication, "Token has expired"))
		return nil, false
	}
	claims, err := g.tm.Verify(token)
	if err != nil {
		g.deny(c, apperr.New(apperr.Authentication, "Invalid token"))
		return nil, false
	}
	return claims, true
}

func (g *Gateway) attach(c *gin.Context, claims *utils.Claims) {
	c.Set(ctxClaimsKey, claims)
	c.Set(ctxAuthenticatedKey, true)
}

// deny logs the failure message only; tokens and payloads never hit the logs.
func (g *Gateway) deny(c *gin.Context, err *apperr.Error) {
	g.log.Warn("request rejected",
		slog.String("path", c.FullPath()),
		slog.String("reason", err.Message),
	)
	apperr.Abort(c, g.env, err)
}

func isAdmin(claims *utils.Claims) bool {
	return claims.IsAdmin || claims.Role == string(models.RoleAdmin)
}

func roleAllowed(role string, allowed []models.Role) bool {
	for _, r := range allowed {
		if role == string(r) {
			return true
		}
	}
	return false
}

// ownerIDFromBody peeks the JSON body for the owner id without consuming it
// for the downstream handler.
func ownerIDFromBody(c *gin.Context, field string) string {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	id, _ := body[field].(string)
	return id
}
