package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Mongo struct {
	client    *mongo.Client
	database  *mongo.Database
	users     *mongo.Collection
	companies *mongo.Collection
	tokens    *mongo.Collection
	logins    *mongo.Collection
}

// NewMongo connects, pings and ensures indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	m := &Mongo{
		client:    client,
		database:  db,
		users:     db.Collection("users"),
		companies: db.Collection("companies"),
		tokens:    db.Collection("tokens"),
		logins:    db.Collection("login_histories"),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// one session record per user
	_, err = m.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("tokens.user_id index: %w", err)
	}

	_, err = m.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "refresh_token", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("tokens.refresh_token index: %w", err)
	}

	// abandoned sessions are removed once the refresh token has expired
	_, err = m.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("tokens.expires_at TTL index: %w", err)
	}

	_, err = m.logins.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "login_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("login_histories.user_id index: %w", err)
	}

	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// isDuplicateKeyError checks for MongoDB error code 11000.
func isDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
