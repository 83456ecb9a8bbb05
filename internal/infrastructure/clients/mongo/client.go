package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
	"github.com/zatekoja/triage-dispatch/backend/pkg/retry"
)

// Client represents a MongoDB client bound to one database
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects to MongoDB with exponential backoff retry
func NewClient(ctx context.Context, cfg *config.MongoConfig) (*Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	err = retry.DoWithLog(ctx, retry.DefaultConfig(), "MongoDB", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to MongoDB after retries: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return &Client{client: client, database: client.Database(cfg.Database)}, nil
}

// Database returns the configured database
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Close disconnects from MongoDB
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping verifies the connection to MongoDB
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}
