package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	dbClient *mongo.Client
	dbName   string
)

// Connect dials MongoDB once and keeps the client for OpenCollection.
func Connect(ctx context.Context, uri, databaseName string) error {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return err
	}

	dbClient = client
	dbName = databaseName
	return nil
}

func Disconnect(ctx context.Context) error {
	if dbClient == nil {
		return nil
	}
	return dbClient.Disconnect(ctx)
}

func OpenCollection(collectionName string) *mongo.Collection {
	return dbClient.Database(dbName).Collection(collectionName)
}
