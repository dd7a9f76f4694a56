package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/config"
	"dayplan/internal/dayview"
	"dayplan/internal/model"
	"dayplan/internal/store"
	"dayplan/internal/store/filestore"
)

const testDate = "2025-03-14"

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyUID(_ context.Context, token string) (string, error) {
	if uid, ok := f[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

type testEnv struct {
	srv   *Server
	h     http.Handler
	store *filestore.Store
	cfg   *config.Config
}

func newEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := filestore.Open(context.Background(), filepath.Join(dir, "store.yaml"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	cfg := config.DefaultConfig()
	cfg.OwnerID = "owner"
	cfg.Timezone = "UTC"
	d := Deps{
		Config:      cfg,
		Store:       st,
		PreviewPath: filepath.Join(dir, "preview.png"),
		Now:         func() time.Time { return time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(cfg, &d)
	}
	srv := NewServer(d)
	return &testEnv{srv: srv, h: srv.Handler(), store: st, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func validTask() model.Task {
	return model.Task{
		ClientID:    "c1",
		Date:        testDate,
		StartAt:     "09:00",
		EndAt:       "10:00",
		Type:        "window_cleaning",
		Description: "Ramen wassen",
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t, func(c *config.Config, _ *Deps) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	})
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	e := newEnv(t, func(c *config.Config, _ *Deps) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	})

	rec := e.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.SetBasicAuth("u", "wrong")
	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.SetBasicAuth("u", "p")
	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerTokenSetsOwner(t *testing.T) {
	e := newEnv(t, func(_ *config.Config, d *Deps) {
		d.Verifier = fakeVerifier{"tok-a": "uid-a", "tok-b": "uid-b"}
	})

	rec := e.do(t, http.MethodPost, "/api/tasks", validTask(), "Authorization", "Bearer tok-a")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "uid-a", created.OwnerID)

	rec = e.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil, "Authorization", "Bearer tok-b")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNoAuthActsAsConfiguredOwner(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/api/tasks", validTask())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "owner", created.OwnerID)
	assert.NotEmpty(t, created.ID)
}

func TestTaskCRUD(t *testing.T) {
	e := newEnv(t, nil)

	in := validTask()
	in.Source = "ics:spoofed"
	rec := e.do(t, http.MethodPost, "/api/tasks", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Empty(t, created.Source, "clients cannot mark tasks as imported")

	rec = e.do(t, http.MethodGet, "/api/tasks?date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = e.do(t, http.MethodGet, "/api/tasks?client_id=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	upd := created
	upd.EndAt = "11:00"
	rec = e.do(t, http.MethodPut, "/api/tasks/"+created.ID, upd)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "11:00", updated.EndAt)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	rec = e.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskValidationReturns422(t *testing.T) {
	e := newEnv(t, nil)

	bad := validTask()
	bad.ClientID = ""
	bad.EndAt = "08:00"
	rec := e.do(t, http.MethodPost, "/api/tasks", bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.MsgRequired, resp.Fields["client_id"])
	assert.Equal(t, model.MsgEndAfterStart, resp.Fields["end_at"])
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/timeline?date=14-03-2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tap?y=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"nope":1}`))
	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportedTasksAreReadOnly(t *testing.T) {
	e := newEnv(t, nil)
	imported, err := e.store.Tasks().Upsert(context.Background(), "owner", model.Task{
		ID:       "imp-1",
		ClientID: "ics:work",
		Date:     testDate,
		StartAt:  "12:00",
		EndAt:    "13:00",
		Type:     "free_task",
		Source:   "ics:work",
	})
	require.NoError(t, err)

	upd := validTask()
	rec := e.do(t, http.MethodPut, "/api/tasks/"+imported.ID, upd)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/tasks/"+imported.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/tasks/"+imported.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimelineCacheInvalidatedOnWrite(t *testing.T) {
	e := newEnv(t, nil)

	get := func() dayview.View {
		rec := e.do(t, http.MethodGet, "/api/timeline?date="+testDate, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var v dayview.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
		return v
	}

	v := get()
	assert.Empty(t, v.Blocks)
	assert.Equal(t, testDate, v.Date)

	// Writes that bypass the server are only seen after the TTL.
	_, err := e.store.Tasks().Create(context.Background(), "owner", validTask())
	require.NoError(t, err)
	assert.Empty(t, get().Blocks)

	rec := e.do(t, http.MethodPost, "/api/tasks", validTask())
	require.Equal(t, http.StatusCreated, rec.Code)

	v = get()
	require.Len(t, v.Blocks, 2)
	assert.Equal(t, 2, v.Blocks[0].LaneCount)
}

func TestTimelineCacheExpires(t *testing.T) {
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	e := newEnv(t, func(_ *config.Config, d *Deps) {
		d.Now = func() time.Time { return now }
	})

	rec := e.do(t, http.MethodGet, "/api/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := e.store.Tasks().Create(context.Background(), "owner", validTask())
	require.NoError(t, err)

	now = now.Add(timelineTTL + time.Second)
	rec = e.do(t, http.MethodGet, "/api/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v dayview.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, testDate, v.Date, "date defaults to today in the configured timezone")
	assert.Len(t, v.Blocks, 1)
}

// gatedStore wraps a Store so tests can hold the first ListByDate after it
// has read and can see the context the query ran with.
type gatedStore struct {
	store.Store
	tasks *gatedTasks
}

func (g *gatedStore) Tasks() store.TaskRepository { return g.tasks }

type gatedTasks struct {
	store.TaskRepository
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTasks) ListByDate(ctx context.Context, ownerID, date string) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tasks, err := g.TaskRepository.ListByDate(ctx, ownerID, date)
	if g.read != nil {
		g.once.Do(func() {
			close(g.read)
			<-g.release
		})
	}
	return tasks, err
}

func newGatedEnv(t *testing.T, read, release chan struct{}) *testEnv {
	t.Helper()
	return newEnv(t, func(_ *config.Config, d *Deps) {
		d.Store = &gatedStore{
			Store: d.Store,
			tasks: &gatedTasks{TaskRepository: d.Store.Tasks(), read: read, release: release},
		}
	})
}

func TestTimelineWriteDuringBuildIsNotCachedStale(t *testing.T) {
	read := make(chan struct{})
	release := make(chan struct{})
	e := newGatedEnv(t, read, release)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/timeline?date="+testDate, nil)
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, req)
		first <- rec
	}()

	<-read
	rec := e.do(t, http.MethodPost, "/api/tasks", validTask())
	require.Equal(t, http.StatusCreated, rec.Code)
	close(release)

	rec = <-first
	require.Equal(t, http.StatusOK, rec.Code)
	var v dayview.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Empty(t, v.Blocks, "the first read predates the write")

	rec = e.do(t, http.MethodGet, "/api/timeline?date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Len(t, v.Blocks, 1)
}

func TestTimelineBuildOutlivesCanceledCaller(t *testing.T) {
	e := newGatedEnv(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := e.srv.dayView(ctx, "owner", testDate)
	require.NoError(t, err)
	assert.Equal(t, testDate, v.Date)
}

func TestTap(t *testing.T) {
	e := newEnv(t, nil)
	// 36px per 30 minutes: 120px is 100 minutes after 07:00.
	rec := e.do(t, http.MethodGet, "/api/tap?date="+testDate+"&y=120", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "08:40", resp["start_at"])

	rec = e.do(t, http.MethodGet, "/api/tap?date="+testDate+"&y=-50", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "07:00", resp["start_at"])
}

func TestClientCRUD(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/clients", model.Client{Type: model.ClientTypePrivate})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	c := model.Client{Type: model.ClientTypeBusiness, Name: "Bakkerij Jansen", AddressLine: "Dorpsstraat 1"}
	rec = e.do(t, http.MethodPost, "/api/clients", c)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	created.City = "Utrecht"
	rec = e.do(t, http.MethodPut, "/api/clients/"+created.ID, created)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Utrecht", list[0].City)

	rec = e.do(t, http.MethodDelete, "/api/clients/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/clients/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDayPageAndSVG(t *testing.T) {
	e := newEnv(t, nil)
	task := validTask()
	task.Description = "Ramen <wassen>"
	rec := e.do(t, http.MethodPost, "/api/tasks", task)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/day?date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "<svg")
	assert.NotContains(t, body, "<?xml")
	assert.Contains(t, body, "Ramen &lt;wassen&gt;")

	rec = e.do(t, http.MethodGet, "/day.svg?date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<?xml"))
}

func TestPreview(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(e.srv.preview, png, 0o600))
	rec = e.do(t, http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic dTpw", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(req)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestOwnerHandlerSkipsAuth(t *testing.T) {
	e := newEnv(t, func(c *config.Config, d *Deps) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
		d.Verifier = fakeVerifier{}
	})
	h := e.srv.OwnerHandler("owner")

	req := httptest.NewRequest(http.MethodGet, "/day?date="+testDate, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-ready="true"`)
}
