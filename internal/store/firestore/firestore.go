// Package firestore implements the task and client repositories on Cloud
// Firestore. Day subscriptions are Firestore snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

const (
	tasksCollection   = "tasks"
	clientsCollection = "clients"
)

// Store is a store.Store backed by Firestore.
type Store struct {
	client *gcfirestore.Client
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open gets the Firestore client of app.
func Open(ctx context.Context, app *firebase.App) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: error getting client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client, e.g. one pointed at the emulator.
func New(client *gcfirestore.Client) *Store {
	return &Store{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Tasks implements store.Store.
func (s *Store) Tasks() store.TaskRepository { return taskRepo{s} }

// Clients implements store.Store.
func (s *Store) Clients() store.ClientRepository { return clientRepo{s} }

// Close releases the client.
func (s *Store) Close(context.Context) error { return s.client.Close() }

func isNotFound(err error) bool { return status.Code(err) == codes.NotFound }

// ownedDoc loads collection/id and checks it belongs to ownerID. Another
// owner's document reads as missing.
func (s *Store) ownedDoc(ctx context.Context, collection, ownerID, id string) (*gcfirestore.DocumentSnapshot, error) {
	if id == "" {
		return nil, store.ErrNotFound
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("firestore: get %s/%s: %w", collection, id, err)
	}
	owner, err := snap.DataAt("ownerId")
	if err != nil || owner != ownerID {
		return nil, store.ErrNotFound
	}
	return snap, nil
}

func taskFrom(snap *gcfirestore.DocumentSnapshot) (model.Task, error) {
	var t model.Task
	if err := snap.DataTo(&t); err != nil {
		return model.Task{}, fmt.Errorf("firestore: decode task %s: %w", snap.Ref.ID, err)
	}
	t.ID = snap.Ref.ID
	return t, nil
}

func clientFrom(snap *gcfirestore.DocumentSnapshot) (model.Client, error) {
	var c model.Client
	if err := snap.DataTo(&c); err != nil {
		return model.Client{}, fmt.Errorf("firestore: decode client %s: %w", snap.Ref.ID, err)
	}
	c.ID = snap.Ref.ID
	return c, nil
}

func tasksFrom(snaps []*gcfirestore.DocumentSnapshot) ([]model.Task, error) {
	out := make([]model.Task, 0, len(snaps))
	for _, snap := range snaps {
		t, err := taskFrom(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type taskRepo struct{ s *Store }

func (r taskRepo) col() *gcfirestore.CollectionRef { return r.s.client.Collection(tasksCollection) }

func (r taskRepo) Create(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	now := r.s.now()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := r.col().Doc(t.ID).Create(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("firestore: create task: %w", err)
	}
	return t, nil
}

func (r taskRepo) Update(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	snap, err := r.s.ownedDoc(ctx, tasksCollection, ownerID, t.ID)
	if err != nil {
		return model.Task{}, err
	}
	prev, err := taskFrom(snap)
	if err != nil {
		return model.Task{}, err
	}
	t.OwnerID = ownerID
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = r.s.now()

	if _, err := r.col().Doc(t.ID).Set(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("firestore: update task %s: %w", t.ID, err)
	}
	return t, nil
}

func (r taskRepo) Upsert(ctx context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	now := r.s.now()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	snap, err := r.col().Doc(t.ID).Get(ctx)
	switch {
	case err == nil:
		prev, err := taskFrom(snap)
		if err != nil {
			return model.Task{}, err
		}
		if prev.OwnerID != ownerID {
			return model.Task{}, store.ErrNotFound
		}
		t.CreatedAt = prev.CreatedAt
	case !isNotFound(err):
		return model.Task{}, fmt.Errorf("firestore: upsert task %s: %w", t.ID, err)
	}

	if _, err := r.col().Doc(t.ID).Set(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("firestore: upsert task %s: %w", t.ID, err)
	}
	return t, nil
}

func (r taskRepo) Get(ctx context.Context, ownerID, id string) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	snap, err := r.s.ownedDoc(ctx, tasksCollection, ownerID, id)
	if err != nil {
		return model.Task{}, err
	}
	return taskFrom(snap)
}

func (r taskRepo) Delete(ctx context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	if _, err := r.s.ownedDoc(ctx, tasksCollection, ownerID, id); err != nil {
		return err
	}
	if _, err := r.col().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore: delete task %s: %w", id, err)
	}
	return nil
}

func (r taskRepo) byDate(ownerID, date string) gcfirestore.Query {
	return r.col().
		Where("ownerId", "==", ownerID).
		Where("date", "==", date).
		OrderBy("startAt", gcfirestore.Asc)
}

func (r taskRepo) ListByDate(ctx context.Context, ownerID, date string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	snaps, err := r.byDate(ownerID, date).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list tasks: %w", err)
	}
	tasks, err := tasksFrom(snaps)
	if err != nil {
		return nil, err
	}
	// Equal start times fall back to ID order, as in the other backends.
	store.SortTasks(tasks)
	return tasks, nil
}

func (r taskRepo) ListByClient(ctx context.Context, ownerID, clientID string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	snaps, err := r.col().
		Where("ownerId", "==", ownerID).
		Where("clientId", "==", clientID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list tasks: %w", err)
	}
	tasks, err := tasksFrom(snaps)
	if err != nil {
		return nil, err
	}
	store.SortTasks(tasks)
	return tasks, nil
}

func (r taskRepo) SubscribeByDate(ctx context.Context, ownerID, date string, fn func([]model.Task)) (store.Unsubscribe, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	listenCtx, cancel := context.WithCancel(ctx)
	it := r.byDate(ownerID, date).Snapshots(listenCtx)
	feed := store.NewFeed(fn)

	go func() {
		defer feed.Stop()
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if listenCtx.Err() == nil && !errors.Is(err, iterator.Done) && status.Code(err) != codes.Canceled {
					appLog.Error("firestore: snapshot listener failed", err, "owner", ownerID, "date", date)
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				appLog.Error("firestore: reading snapshot failed", err, "owner", ownerID, "date", date)
				continue
			}
			tasks, err := tasksFrom(snaps)
			if err != nil {
				appLog.Error("firestore: decoding snapshot failed", err, "owner", ownerID, "date", date)
				continue
			}
			store.SortTasks(tasks)
			feed.Push(tasks)
		}
	}()

	return func() {
		feed.Stop()
		cancel()
	}, nil
}

type clientRepo struct{ s *Store }

func (r clientRepo) col() *gcfirestore.CollectionRef { return r.s.client.Collection(clientsCollection) }

func (r clientRepo) Create(ctx context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	if c.ID == "" {
		c.ID = model.NewID()
	}
	now := r.s.now()
	c.OwnerID = ownerID
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := r.col().Doc(c.ID).Create(ctx, c); err != nil {
		return model.Client{}, fmt.Errorf("firestore: create client: %w", err)
	}
	return c, nil
}

func (r clientRepo) Update(ctx context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	snap, err := r.s.ownedDoc(ctx, clientsCollection, ownerID, c.ID)
	if err != nil {
		return model.Client{}, err
	}
	prev, err := clientFrom(snap)
	if err != nil {
		return model.Client{}, err
	}
	c.OwnerID = ownerID
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = r.s.now()

	if _, err := r.col().Doc(c.ID).Set(ctx, c); err != nil {
		return model.Client{}, fmt.Errorf("firestore: update client %s: %w", c.ID, err)
	}
	return c, nil
}

func (r clientRepo) Get(ctx context.Context, ownerID, id string) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	snap, err := r.s.ownedDoc(ctx, clientsCollection, ownerID, id)
	if err != nil {
		return model.Client{}, err
	}
	return clientFrom(snap)
}

func (r clientRepo) Delete(ctx context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	if _, err := r.s.ownedDoc(ctx, clientsCollection, ownerID, id); err != nil {
		return err
	}
	if _, err := r.col().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore: delete client %s: %w", id, err)
	}
	return nil
}

func (r clientRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	snaps, err := r.col().Where("ownerId", "==", ownerID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list clients: %w", err)
	}
	out := make([]model.Client, 0, len(snaps))
	for _, snap := range snaps {
		c, err := clientFrom(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	store.SortClients(out)
	return out, nil
}
