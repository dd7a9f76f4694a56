// Package store defines the document repositories for tasks and clients.
// Backends live in the subpackages filestore, mongostore and firestore.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"dayplan/internal/model"
)

var (
	// ErrNotFound is returned when a document does not exist or belongs
	// to another owner.
	ErrNotFound = errors.New("store: not found")
	// ErrUnauthenticated is returned when no owner ID is supplied.
	ErrUnauthenticated = errors.New("store: not authenticated")
)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// TaskRepository stores tasks. Create assigns ID, OwnerID and timestamps
// when they are empty; Update bumps UpdatedAt.
type TaskRepository interface {
	Create(ctx context.Context, ownerID string, t model.Task) (model.Task, error)
	Update(ctx context.Context, ownerID string, t model.Task) (model.Task, error)
	// Upsert writes t under its own ID, creating or replacing it.
	Upsert(ctx context.Context, ownerID string, t model.Task) (model.Task, error)
	Get(ctx context.Context, ownerID, id string) (model.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	ListByDate(ctx context.Context, ownerID, date string) ([]model.Task, error)
	ListByClient(ctx context.Context, ownerID, clientID string) ([]model.Task, error)
	// SubscribeByDate calls fn with the current list and again after
	// every change, until the returned Unsubscribe runs or ctx is done.
	// No new call of fn starts after Unsubscribe returns.
	SubscribeByDate(ctx context.Context, ownerID, date string, fn func([]model.Task)) (Unsubscribe, error)
}

// ClientRepository stores clients.
type ClientRepository interface {
	Create(ctx context.Context, ownerID string, c model.Client) (model.Client, error)
	Update(ctx context.Context, ownerID string, c model.Client) (model.Client, error)
	Get(ctx context.Context, ownerID, id string) (model.Client, error)
	Delete(ctx context.Context, ownerID, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Client, error)
}

// Store bundles both repositories of one backend.
type Store interface {
	Tasks() TaskRepository
	Clients() ClientRepository
	Close(ctx context.Context) error
}

// RequireOwner returns ErrUnauthenticated for an empty owner ID.
func RequireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrUnauthenticated
	}
	return nil
}

// SortTasks orders tasks by start time, then ID, matching the
// orderBy(startAt) query the backends use.
func SortTasks(tasks []model.Task) {
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		if c := strings.Compare(a.StartAt, b.StartAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SortClients orders clients by name, then ID.
func SortClients(clients []model.Client) {
	slices.SortStableFunc(clients, func(a, b model.Client) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
