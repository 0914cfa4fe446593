package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/kitabi/kitabibackend/apperr"
	"github.com/kitabi/kitabibackend/database"
	"github.com/kitabi/kitabibackend/dto"
	"github.com/kitabi/kitabibackend/logger"
	"github.com/kitabi/kitabibackend/middleware"
	"github.com/kitabi/kitabibackend/models"
	"github.com/kitabi/kitabibackend/utils"
)

func (a *App) findUser(c *gin.Context, param string) (*models.User, bool) {
	id, err := bson.ObjectIDFromHex(c.Param(param))
	if err != nil {
		apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "Invalid user id"))
		return nil, false
	}

	var user models.User
	usersCol := database.OpenCollection("users")
	if err := usersCol.FindOne(c.Request.Context(), bson.M{"_id": id}).Decode(&user); err != nil {
		apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.NotAvailable, "User not found"))
		return nil, false
	}
	return &user, true
}

// GET /users/:userId, reached through OwnerOrAdmin("userId").
func (a *App) GetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := a.findUser(c, "userId")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
	}
}

// PATCH /users/:userId, reached through OwnerOrAdmin("userId").
func (a *App) UpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.UpdateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid profile payload", err))
			return
		}

		user, ok := a.findUser(c, "userId")
		if !ok {
			return
		}

		set := bson.M{"updatedAt": time.Now().UTC()}
		if body.Username != "" {
			set["username"] = strings.TrimSpace(body.Username)
		}

		usersCol := database.OpenCollection("users")
		if _, err := usersCol.UpdateByID(c.Request.Context(), user.ID, bson.M{"$set": set}); err != nil {
			if utils.IsDuplicateKey(err) {
				apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, "Username already taken"))
				return
			}
			a.Log.Error("profile update failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to update profile", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// POST /users/me/password
func (a *App) ChangeMyPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangePasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid password payload", err))
			return
		}

		claims, ok := middleware.ClaimsFrom(c)
		if !ok {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Access denied. No token provided."))
			return
		}
		userID, err := bson.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Invalid token"))
			return
		}

		var user models.User
		usersCol := database.OpenCollection("users")
		if err := usersCol.FindOne(c.Request.Context(), bson.M{"_id": userID}).Decode(&user); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Invalid token"))
			return
		}

		if !utils.CheckPassword(user.PasswordHash, body.CurrentPassword) {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Authentication, "Current password is incorrect"))
			return
		}

		strength := utils.ValidatePasswordStrength(body.NewPassword)
		if !strength.IsValid {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, strings.Join(strength.Errors, ". ")))
			return
		}

		newHash, err := utils.HashPassword(body.NewPassword, a.Cfg.BcryptCost)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to change password", err))
			return
		}

		_, err = usersCol.UpdateByID(c.Request.Context(), userID, bson.M{
			"$set": bson.M{
				"passwordHash": newHash,
				"updatedAt":    time.Now().UTC(),
			},
		})
		if err != nil {
			a.Log.Error("password update failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to change password", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// POST /admin/users
func (a *App) CreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.CreateUserDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid user payload", err))
			return
		}

		strength := utils.ValidatePasswordStrength(body.Password)
		if !strength.IsValid {
			apperr.Respond(c, a.Cfg.Env, apperr.New(apperr.Validation, strings.Join(strength.Errors, ". ")))
			return
		}

		hash, err := utils.HashPassword(body.Password, a.Cfg.BcryptCost)
		if err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to create user", err))
			return
		}

		role := models.Role(body.Role)
		if role == "" {
			role = models.RoleUser
		}

		now := time.Now().UTC()
		user := models.User{
			Username:     strings.TrimSpace(body.Username),
			Email:        strings.ToLower(strings.TrimSpace(body.Email)),
			PasswordHash: hash,
			Role:         role,
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
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to create user", err))
			return
		}
		user.ID = result.InsertedID.(bson.ObjectID)

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": user})
	}
}

// PATCH /admin/users/:userId/status
func (a *App) UpdateUserStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.UpdateUserStatusDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Validation, "Invalid status payload", err))
			return
		}

		user, ok := a.findUser(c, "userId")
		if !ok {
			return
		}

		usersCol := database.OpenCollection("users")
		_, err := usersCol.UpdateByID(c.Request.Context(), user.ID, bson.M{
			"$set": bson.M{
				"status":    models.Status(body.Status),
				"updatedAt": time.Now().UTC(),
			},
		})
		if err != nil {
			a.Log.Error("status update failed", logger.Err(err))
			apperr.Respond(c, a.Cfg.Env, apperr.Wrap(apperr.Internal, "Failed to update status", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
