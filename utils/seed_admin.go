package utils

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kitabi/kitabibackend/config"
	"github.com/kitabi/kitabibackend/models"
)

// SeedAdminUser upserts the bootstrap admin account. Safe to run on every
// boot; an existing account is left untouched.
func SeedAdminUser(ctx context.Context, usersCol *mongo.Collection, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD env vars")
	}

	hash, err := HashPassword(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()

	filter := bson.M{"email": cfg.AdminEmail}
	update := bson.M{
		"$setOnInsert": bson.M{
			"username":     cfg.AdminUsername,
			"email":        cfg.AdminEmail,
			"passwordHash": hash,
			"role":         models.RoleAdmin,
			"status":       models.StatusActive,
			"createdAt":    now,
			"updatedAt":    now,
		},
	}

	opts := options.UpdateOne().SetUpsert(true)

	if _, err := usersCol.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("seed admin upsert failed: %w", err)
	}

	return nil
}
