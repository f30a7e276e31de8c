package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxCommitTime  = time.Second
)

// MongoConfig holds the configuration for the MongoDB client.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// MaxCommitTime bounds how long a transaction commit may take. A commit
	// either becomes durable within this bound or the attempt fails fast.
	MaxCommitTime time.Duration `yaml:"maxCommitTime"`
}

// TxRunner abstracts the metadata store transaction boundary so business logic
// can be tested without a live replica set.
type TxRunner interface {
	// WithTransaction runs fn inside one session transaction. Collection
	// operations pick up the session from the context passed to fn.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mongo wraps a MongoDB client scoped to one database.
type Mongo struct {
	client        *mongo.Client
	db            *mongo.Database
	maxCommitTime time.Duration
}

// NewMongo connects a MongoDB client and verifies the connection.
func NewMongo(cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.MaxCommitTime <= 0 {
		cfg.MaxCommitTime = defaultMaxCommitTime
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo failed: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo failed: %w", err)
	}

	return &Mongo{
		client:        client,
		db:            client.Database(cfg.Database),
		maxCommitTime: cfg.MaxCommitTime,
	}, nil
}

// Database returns the configured database handle.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle in the configured database.
func (m *Mongo) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Ping verifies the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// WithTransaction runs fn inside one session transaction with primary read
// preference, local read concern and majority write concern. The commit is
// bounded by MaxCommitTime so a write becomes durable and visible to
// majority-read followers within a tight bound, or fails fast.
func (m *Mongo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session failed: %w", err)
	}
	defer session.EndSession(ctx)

	maxCommitTime := m.maxCommitTime
	txnOpts := options.Transaction().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Local()).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxCommitTime(&maxCommitTime)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	return err
}
