package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

type taskRepo struct{ s *Store }

func (r taskRepo) Create(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = model.NewID()
	}
	now := r.s.now()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := r.s.tasks.InsertOne(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("mongostore: create task: %w", err)
	}
	return t, nil
}

func (r taskRepo) Update(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	var prev model.Task
	if err := r.s.tasks.FindOne(ctx, byOwnerID(ownerID, t.ID)).Decode(&prev); err != nil {
		return model.Task{}, notFound(err)
	}
	t.OwnerID = ownerID
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = r.s.now()

	res, err := r.s.tasks.ReplaceOne(ctx, byOwnerID(ownerID, t.ID), t)
	if err != nil {
		return model.Task{}, fmt.Errorf("mongostore: update task %s: %w", t.ID, err)
	}
	if res.MatchedCount == 0 {
		return model.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (r taskRepo) Upsert(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = model.NewID()
	}
	now := r.s.now()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	var prev model.Task
	err := r.s.tasks.FindOne(ctx, byOwnerID(ownerID, t.ID)).Decode(&prev)
	switch {
	case err == nil:
		t.CreatedAt = prev.CreatedAt
	case !errors.Is(err, mongo.ErrNoDocuments):
		return model.Task{}, fmt.Errorf("mongostore: upsert task %s: %w", t.ID, err)
	}

	// The unique index on id turns a collision with another owner's
	// document into a duplicate key error.
	opts := options.Replace().SetUpsert(true)
	if _, err := r.s.tasks.ReplaceOne(ctx, byOwnerID(ownerID, t.ID), t, opts); err != nil {
		return model.Task{}, notFound(err)
	}
	return t, nil
}

func (r taskRepo) Get(ctx context.Context, ownerID, id string) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	var t model.Task
	if err := r.s.tasks.FindOne(ctx, byOwnerID(ownerID, id)).Decode(&t); err != nil {
		return model.Task{}, notFound(err)
	}
	return t, nil
}

func (r taskRepo) Delete(ctx context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	res, err := r.s.tasks.DeleteOne(ctx, byOwnerID(ownerID, id))
	if err != nil {
		return fmt.Errorf("mongostore: delete task %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r taskRepo) list(ctx context.Context, filter bson.M) ([]model.Task, error) {
	ctx, cancel := newContext(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "startAt", Value: 1}, {Key: "id", Value: 1}})
	cur, err := r.s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list tasks: %w", err)
	}
	return decodeTasks(ctx, cur)
}

func (r taskRepo) ListByDate(ctx context.Context, ownerID, date string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	return r.list(ctx, bson.M{"ownerId": ownerID, "date": date})
}

func (r taskRepo) ListByClient(ctx context.Context, ownerID, clientID string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	return r.list(ctx, bson.M{"ownerId": ownerID, "clientId": clientID})
}

// watchPipeline matches changes that can affect owner's day. Deletes carry
// no full document, so every delete triggers a re-query.
func watchPipeline(ownerID, date string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument.ownerId": ownerID, "fullDocument.date": date},
			bson.M{"operationType": bson.M{"$in": bson.A{"delete", "update", "replace"}}},
		}}}},
	}
}

func (r taskRepo) SubscribeByDate(ctx context.Context, ownerID, date string, fn func([]model.Task)) (store.Unsubscribe, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := r.s.tasks.Watch(watchCtx, watchPipeline(ownerID, date), opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mongostore: watch tasks: %w", err)
	}

	feed := store.NewFeed(fn)
	push := func() {
		tasks, err := r.ListByDate(watchCtx, ownerID, date)
		if err != nil {
			if watchCtx.Err() == nil {
				appLog.Error("mongostore: subscription query failed", err, "owner", ownerID, "date", date)
			}
			return
		}
		feed.Push(tasks)
	}
	push()

	go func() {
		defer stream.Close(context.Background())
		defer feed.Stop()
		for stream.Next(watchCtx) {
			push()
		}
		if err := stream.Err(); err != nil && watchCtx.Err() == nil {
			appLog.Error("mongostore: change stream ended", err, "owner", ownerID, "date", date)
		}
	}()

	return func() {
		feed.Stop()
		cancel()
	}, nil
}

type clientRepo struct{ s *Store }

func (r clientRepo) Create(ctx context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = model.NewID()
	}
	now := r.s.now()
	c.OwnerID = ownerID
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := r.s.clients.InsertOne(ctx, c); err != nil {
		return model.Client{}, fmt.Errorf("mongostore: create client: %w", err)
	}
	return c, nil
}

func (r clientRepo) Update(ctx context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	var prev model.Client
	if err := r.s.clients.FindOne(ctx, byOwnerID(ownerID, c.ID)).Decode(&prev); err != nil {
		return model.Client{}, notFound(err)
	}
	c.OwnerID = ownerID
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = r.s.now()

	if _, err := r.s.clients.ReplaceOne(ctx, byOwnerID(ownerID, c.ID), c); err != nil {
		return model.Client{}, fmt.Errorf("mongostore: update client %s: %w", c.ID, err)
	}
	return c, nil
}

func (r clientRepo) Get(ctx context.Context, ownerID, id string) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	var c model.Client
	if err := r.s.clients.FindOne(ctx, byOwnerID(ownerID, id)).Decode(&c); err != nil {
		return model.Client{}, notFound(err)
	}
	return c, nil
}

func (r clientRepo) Delete(ctx context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	res, err := r.s.clients.DeleteOne(ctx, byOwnerID(ownerID, id))
	if err != nil {
		return fmt.Errorf("mongostore: delete client %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r clientRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	ctx, cancel := newContext(ctx)
	defer cancel()

	cur, err := r.s.clients.Find(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list clients: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.Client{}
	for cur.Next(ctx) {
		var c model.Client
		if err := cur.Decode(&c); err != nil {
			return nil, fmt.Errorf("mongostore: decode client: %w", err)
		}
		out = append(out, c)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// Names compare case-insensitively.
	store.SortClients(out)
	return out, nil
}
