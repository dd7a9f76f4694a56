// Package mongostore implements the task and client repositories on
// MongoDB. Subscriptions use change streams, which need a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

const (
	tasksCollection   = "tasks"
	clientsCollection = "clients"

	opTimeout = 5 * time.Second
)

// Store is a store.Store backed by one MongoDB database.
type Store struct {
	client  *mongo.Client
	tasks   *mongo.Collection
	clients *mongo.Collection
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:  client,
		tasks:   db.Collection(tasksCollection),
		clients: db.Collection(clientsCollection),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureIndexes(ctx); err != nil {
		// Queries still work without indexes, just slower.
		appLog.Warn("mongostore: failed to create indexes", "err", err.Error())
	}
	appLog.Info("connected to MongoDB", "database", database)
	return s, nil
}

// newContext bounds one database operation.
func newContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// ensureIndexes creates indexes for the fields the repositories filter on.
func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	taskIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "date", Value: 1}, {Key: "startAt", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "clientId", Value: 1}}},
	}
	if _, err := s.tasks.Indexes().CreateMany(ctx, taskIndexes); err != nil {
		return fmt.Errorf("tasks indexes: %w", err)
	}

	clientIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "name", Value: 1}}},
	}
	if _, err := s.clients.Indexes().CreateMany(ctx, clientIndexes); err != nil {
		return fmt.Errorf("clients indexes: %w", err)
	}
	return nil
}

// Tasks implements store.Store.
func (s *Store) Tasks() store.TaskRepository { return taskRepo{s} }

// Clients implements store.Store.
func (s *Store) Clients() store.ClientRepository { return clientRepo{s} }

// Close disconnects from the server.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func byOwnerID(ownerID, id string) bson.M {
	return bson.M{"id": id, "ownerId": ownerID}
}

// notFound maps driver errors to store.ErrNotFound where they mean the
// document is absent or owned by someone else.
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) || mongo.IsDuplicateKeyError(err) {
		return store.ErrNotFound
	}
	return err
}

func decodeTasks(ctx context.Context, cur *mongo.Cursor) ([]model.Task, error) {
	defer cur.Close(ctx)
	out := []model.Task{}
	for cur.Next(ctx) {
		var t model.Task
		if err := cur.Decode(&t); err != nil {
			return nil, fmt.Errorf("mongostore: decode task: %w", err)
		}
		out = append(out, t)
	}
	return out, cur.Err()
}
