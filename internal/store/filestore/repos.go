package filestore

import (
	"context"
	"slices"

	"dayplan/internal/model"
	"dayplan/internal/store"
)

type taskRepo struct{ s *Store }

func (r taskRepo) find(owner, id string) int {
	return slices.IndexFunc(r.s.doc.Tasks, func(t model.Task) bool {
		return t.ID == id && t.OwnerID == owner
	})
}

func (r taskRepo) Create(_ context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = model.NewID()
	} else if slices.ContainsFunc(s.doc.Tasks, func(x model.Task) bool { return x.ID == t.ID }) {
		return model.Task{}, ErrExists
	}
	now := s.now()
	t.OwnerID = ownerID
	t.CreatedAt = now
	t.UpdatedAt = now

	doc := s.doc
	doc.Tasks = append(slices.Clone(doc.Tasks), t)
	if err := s.commit(doc); err != nil {
		return model.Task{}, err
	}
	s.notify(ownerID, t.Date)
	return t, nil
}

func (r taskRepo) Update(_ context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i := r.find(ownerID, t.ID)
	if i < 0 {
		return model.Task{}, store.ErrNotFound
	}
	prev := s.doc.Tasks[i]
	t.OwnerID = ownerID
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = s.now()

	doc := s.doc
	doc.Tasks = slices.Clone(doc.Tasks)
	doc.Tasks[i] = t
	if err := s.commit(doc); err != nil {
		return model.Task{}, err
	}
	s.notify(ownerID, prev.Date, t.Date)
	return t, nil
}

func (r taskRepo) Upsert(_ context.Context, ownerID string, t model.Task) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t.OwnerID = ownerID
	t.UpdatedAt = now

	doc := s.doc
	doc.Tasks = slices.Clone(doc.Tasks)
	dates := []string{t.Date}
	if i := r.find(ownerID, t.ID); i >= 0 {
		prev := doc.Tasks[i]
		t.CreatedAt = prev.CreatedAt
		doc.Tasks[i] = t
		dates = append(dates, prev.Date)
	} else {
		if slices.ContainsFunc(doc.Tasks, func(x model.Task) bool { return x.ID == t.ID }) {
			// Taken by another owner.
			return model.Task{}, store.ErrNotFound
		}
		t.CreatedAt = now
		doc.Tasks = append(doc.Tasks, t)
	}
	if err := s.commit(doc); err != nil {
		return model.Task{}, err
	}
	s.notify(ownerID, dates...)
	return t, nil
}

func (r taskRepo) Get(_ context.Context, ownerID, id string) (model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Task{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.find(ownerID, id); i >= 0 {
		return r.s.doc.Tasks[i], nil
	}
	return model.Task{}, store.ErrNotFound
}

func (r taskRepo) Delete(_ context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i := r.find(ownerID, id)
	if i < 0 {
		return store.ErrNotFound
	}
	date := s.doc.Tasks[i].Date
	doc := s.doc
	doc.Tasks = slices.Delete(slices.Clone(doc.Tasks), i, i+1)
	if err := s.commit(doc); err != nil {
		return err
	}
	s.notify(ownerID, date)
	return nil
}

func (r taskRepo) ListByDate(_ context.Context, ownerID, date string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.tasksFor(ownerID, date), nil
}

func (r taskRepo) ListByClient(_ context.Context, ownerID, clientID string) ([]model.Task, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []model.Task{}
	for _, t := range r.s.doc.Tasks {
		if t.OwnerID == ownerID && t.ClientID == clientID {
			out = append(out, t)
		}
	}
	store.SortTasks(out)
	return out, nil
}

func (r taskRepo) SubscribeByDate(ctx context.Context, ownerID, date string, fn func([]model.Task)) (store.Unsubscribe, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	return r.s.subscribe(ctx, ownerID, date, fn), nil
}

type clientRepo struct{ s *Store }

func (r clientRepo) find(owner, id string) int {
	return slices.IndexFunc(r.s.doc.Clients, func(c model.Client) bool {
		return c.ID == id && c.OwnerID == owner
	})
}

func (r clientRepo) Create(_ context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = model.NewID()
	} else if slices.ContainsFunc(s.doc.Clients, func(x model.Client) bool { return x.ID == c.ID }) {
		return model.Client{}, ErrExists
	}
	now := s.now()
	c.OwnerID = ownerID
	c.CreatedAt = now
	c.UpdatedAt = now

	doc := s.doc
	doc.Clients = append(slices.Clone(doc.Clients), c)
	if err := s.commit(doc); err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (r clientRepo) Update(_ context.Context, ownerID string, c model.Client) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i := r.find(ownerID, c.ID)
	if i < 0 {
		return model.Client{}, store.ErrNotFound
	}
	c.OwnerID = ownerID
	c.CreatedAt = s.doc.Clients[i].CreatedAt
	c.UpdatedAt = s.now()

	doc := s.doc
	doc.Clients = slices.Clone(doc.Clients)
	doc.Clients[i] = c
	if err := s.commit(doc); err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (r clientRepo) Get(_ context.Context, ownerID, id string) (model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return model.Client{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.find(ownerID, id); i >= 0 {
		return r.s.doc.Clients[i], nil
	}
	return model.Client{}, store.ErrNotFound
}

func (r clientRepo) Delete(_ context.Context, ownerID, id string) error {
	if err := store.RequireOwner(ownerID); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i := r.find(ownerID, id)
	if i < 0 {
		return store.ErrNotFound
	}
	doc := s.doc
	doc.Clients = slices.Delete(slices.Clone(doc.Clients), i, i+1)
	return s.commit(doc)
}

func (r clientRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Client, error) {
	if err := store.RequireOwner(ownerID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []model.Client{}
	for _, c := range r.s.doc.Clients {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	store.SortClients(out)
	return out, nil
}
