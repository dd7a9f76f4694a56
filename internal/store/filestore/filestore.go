// Package filestore keeps tasks and clients in a single YAML document on
// disk. Writes replace the file atomically; edits made by other processes
// are picked up through fsnotify and pushed to subscribers.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"dayplan/internal/fsutil"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

// ErrExists is returned by Create when the ID is already taken.
var ErrExists = errors.New("filestore: document already exists")

type document struct {
	Tasks   []model.Task   `yaml:"tasks"`
	Clients []model.Client `yaml:"clients"`
}

type subscription struct {
	owner string
	date  string
	feed  *store.Feed
}

// Store is a store.Store backed by one YAML file.
type Store struct {
	path string
	now  func() time.Time

	mu          sync.Mutex
	doc         document
	lastWritten []byte
	subs        map[int]*subscription
	nextSub     int

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// Open loads path (a missing file is an empty store) and starts watching
// its directory.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: path is empty")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("filestore: ensure dir: %w", err)
	}

	s := &Store{
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
		subs: make(map[int]*subscription),
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("filestore: parse %s: %w", path, err)
		}
		s.lastWritten = data
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filestore: create fsnotify watcher: %w", err)
	}
	// Watch the directory: an atomic rename replaces the file's inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("filestore: watch %s: %w", filepath.Dir(path), err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.watchLoop(watchCtx)

	appLog.Info("filestore opened", "path", path,
		"tasks", len(s.doc.Tasks), "clients", len(s.doc.Clients))
	return s, nil
}

// Tasks implements store.Store.
func (s *Store) Tasks() store.TaskRepository { return taskRepo{s} }

// Clients implements store.Store.
func (s *Store) Clients() store.ClientRepository { return clientRepo{s} }

// Close stops the watcher and all subscriptions.
func (s *Store) Close(ctx context.Context) error {
	s.cancel()
	err := s.watcher.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	for id, sub := range s.subs {
		sub.feed.Stop()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return err
}

func (s *Store) watchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				appLog.Debug("filestore: fsnotify event", "op", event.Op.String(), "file", event.Name)
				s.reload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			appLog.Error("filestore: fsnotify error", err)
		}
	}
}

// reload re-reads the file after an external change and notifies every
// subscriber. Our own writes are recognized by content and ignored.
func (s *Store) reload() {
	// Read under the lock so a stale read cannot overwrite a newer commit.
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("filestore: reload failed", err, "path", s.path)
		}
		return
	}
	if bytes.Equal(data, s.lastWritten) {
		return
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// Likely a partial write by an editor; the next event retries.
		appLog.Warn("filestore: ignoring unparseable file", "path", s.path, "err", err.Error())
		return
	}
	s.doc = doc
	s.lastWritten = data
	appLog.Info("filestore reloaded", "path", s.path, "tasks", len(doc.Tasks), "clients", len(doc.Clients))
	for _, sub := range s.subs {
		sub.feed.Push(s.tasksFor(sub.owner, sub.date))
	}
}

// commit persists doc and makes it current. Callers hold s.mu.
func (s *Store) commit(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("filestore: write %s: %w", s.path, err)
	}
	s.doc = doc
	s.lastWritten = data
	return nil
}

// notify pushes fresh lists to subscribers of owner on any of dates.
// Callers hold s.mu.
func (s *Store) notify(owner string, dates ...string) {
	for _, sub := range s.subs {
		if sub.owner == owner && slices.Contains(dates, sub.date) {
			sub.feed.Push(s.tasksFor(sub.owner, sub.date))
		}
	}
}

// tasksFor returns a sorted copy of owner's tasks on date. Callers hold s.mu.
func (s *Store) tasksFor(owner, date string) []model.Task {
	out := []model.Task{}
	for _, t := range s.doc.Tasks {
		if t.OwnerID == owner && t.Date == date {
			out = append(out, t)
		}
	}
	store.SortTasks(out)
	return out
}

func (s *Store) subscribe(ctx context.Context, owner, date string, fn func([]model.Task)) store.Unsubscribe {
	feed := store.NewFeed(fn)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{owner: owner, date: date, feed: feed}
	feed.Push(s.tasksFor(owner, date))
	s.mu.Unlock()

	unsubscribe := func() {
		feed.Stop()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-feed.Done():
		}
	}()
	return unsubscribe
}
