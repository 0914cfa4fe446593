package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kitabi/kitabibackend/apperr"
	"github.com/kitabi/kitabibackend/database"
	"github.com/kitabi/kitabibackend/dto"
	"github.com/kitabi/kitabibackend/logger"
	"github.com/kitabi/kitabibackend/models"
	"github.com/kitabi/kitabibackend/utils"
)

func (a *App) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid registration payload", err))
			return
		}

		strength := utils.ValidatePasswordStrength(body.Password)
		if !strength.IsValid {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, strings.Join(strength.Errors, ". ")))
			return
		}

		hash, err := utils.HashPassword(body.Password, a.Cfg.BcryptCost)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Registration failed", err))
			return
		}

		now := time.Now().UTC()
		user := models.User{
			Username:     strings.TrimSpace(body.Username),
			Email:        strings.ToLower(strings.TrimSpace(body.Email)),
			PasswordHash: hash,
			Role:         models.RoleUser,
			Status:       models.StatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		usersCol := database.OpenCollection("users")
		result, err := usersCol.InsertOne(c.Request.Context(), user)
		if err != nil {
			if utils.IsDuplicateKey(err) {
				apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "Email or username already registered"))
				return
			}
			a.Log.Error("user insert failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Registration failed", err))
			return
		}
		user.ID = result.InsertedID.(bson.ObjectID)

		token, err := a.TM.IssueForUser(&user)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Registration failed", err))
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"token":   token,
			"user":    user,
		})
	}
}

func (a *App) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid login payload", err))
			return
		}

		var user models.User
		usersCol := database.OpenCollection("users")
		err := usersCol.FindOne(c.Request.Context(),
			bson.M{"email": strings.ToLower(strings.TrimSpace(body.Email))}).Decode(&user)
		if err != nil || !utils.CheckPassword(user.PasswordHash, body.Password) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Invalid email or password"))
			return
		}

		if user.Status != models.StatusActive {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authorization, "Account is inactive or suspended"))
			return
		}

		token, err := a.TM.IssueForUser(&user)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Login failed", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   token,
			"user":    user,
		})
	}
}

// Refresh reissues the presented token with a fresh expiry. Tokens are not
// stored server-side; verification of the old token is the only gate.
func (a *App) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := utils.ExtractTokenFromHeader(c)
		if token == "" {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Access denied. No token provided."))
			return
		}

		fresh, err := a.TM.Refresh(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, utils.ErrTokenExpired) {
				msg = "Token has expired"
			}
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, msg))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   fresh,
		})
	}
}
