package controllers

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kitabi/kitabibackend/config"
	"github.com/kitabi/kitabibackend/database"
	"github.com/kitabi/kitabibackend/utils"
)

// BookStore is the slice of the books collection the handlers touch.
// *mongo.Collection satisfies it; tests substitute a stub.
type BookStore interface {
	FindOne(ctx context.Context, filter interface{}, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
}

// App carries the shared dependencies every handler factory needs. Built
// once in main with the loaded config so tests can construct it with fixed
// secrets and temp directories.
type App struct {
	Cfg      config.Config
	TM       *utils.TokenMaker
	Uploader *utils.Uploader
	Log      *slog.Logger

	// Books overrides the live collection when set.
	Books BookStore
}

func (a *App) books() BookStore {
	if a.Books != nil {
		return a.Books
	}
	return database.OpenCollection("books")
}
