// Package mongostore keeps sessions as documents in a MongoDB collection:
//
//	{_id: <session id>, payload: <binary>, last_accessed: <unix seconds>}
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MrEthical07/goSession/container"
)

// ErrMongoUnavailable wraps every driver error other than a miss.
var ErrMongoUnavailable = errors.New("mongodb unavailable")

// Config configures [Connect].
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	MaxLifetime    time.Duration
}

type document struct {
	ID           string `bson:"_id"`
	Payload      []byte `bson:"payload"`
	LastAccessed int64  `bson:"last_accessed"`
}

// Store is the MongoDB backend provider.
type Store struct {
	client      *mongo.Client
	coll        *mongo.Collection
	maxLifetime time.Duration
}

// Connect dials cfg.URI and returns a store that owns the client.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "sessions"
	}
	return &Store{
		client:      client,
		coll:        client.Database(cfg.Database).Collection(collection),
		maxLifetime: cfg.MaxLifetime,
	}, nil
}

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type conn struct {
	store *Store
	now   time.Time
	ready bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	c.now = p.Now
	if c.now.IsZero() {
		c.now = time.Now()
	}
	c.ready = true
	return nil
}

func (c *conn) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if !c.ready {
		return nil, false, container.ErrNotInitialized
	}
	filter := bson.M{"_id": id}
	if c.store.maxLifetime > 0 {
		filter["last_accessed"] = bson.M{"$gt": c.now.Add(-c.store.maxLifetime).Unix()}
	}
	var doc document
	err := c.store.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	if doc.Payload == nil {
		doc.Payload = []byte{}
	}
	return doc.Payload, true, nil
}

func (c *conn) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	doc := document{ID: id, Payload: payload, LastAccessed: c.now.Unix()}
	_, err := c.store.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	return true, nil
}

func (c *conn) Touch(ctx context.Context, id string, _ []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	res, err := c.store.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_accessed": c.now.Unix()}})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	return res.MatchedCount > 0, nil
}

func (c *conn) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	cutoff := c.now.Add(-maxLifetime).Unix()
	if _, err := c.store.coll.DeleteMany(ctx, bson.M{"last_accessed": bson.M{"$lt": cutoff}}); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	return true, nil
}

func (c *conn) Delete(ctx context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if _, err := c.store.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMongoUnavailable, err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
