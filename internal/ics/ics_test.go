package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/model"
	"dayplan/internal/store/filestore"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//dayplan//test//EN
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250301T000000Z
DTSTART:20250310T080000Z
DTEND:20250310T081500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250312T080000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250301T000000Z
RECURRENCE-ID:20250313T080000Z
DTSTART:20250313T090000Z
DTEND:20250313T091500Z
SUMMARY:Standup (verplaatst)
END:VEVENT
BEGIN:VEVENT
UID:late@example.com
DTSTAMP:20250301T000000Z
DTSTART:20250311T220000Z
DTEND:20250312T010000Z
SUMMARY:Nachtdienst
END:VEVENT
BEGIN:VEVENT
UID:holiday@example.com
DTSTAMP:20250301T000000Z
DTSTART;VALUE=DATE:20250311
DTEND;VALUE=DATE:20250312
SUMMARY:Vrij
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParse(t *testing.T) {
	events, err := Parse(Calendar{ID: "work"}, crlf(feed))
	require.NoError(t, err)
	require.Len(t, events, 4)

	base := events[0]
	assert.Equal(t, "work", base.CalendarID)
	assert.Equal(t, "Standup", base.Summary)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", base.RRule)
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(utc("2025-03-12T08:00:00Z")))
	assert.Nil(t, base.RecurrenceID)

	override := events[1]
	require.NotNil(t, override.RecurrenceID)
	assert.True(t, override.RecurrenceID.Equal(utc("2025-03-13T08:00:00Z")))

	assert.True(t, events[3].AllDay)
	assert.False(t, events[2].AllDay)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(Calendar{ID: "x"}, []byte("  \n"))
	assert.Error(t, err)
}

func TestExpand_SeriesWithExdateAndOverride(t *testing.T) {
	events, err := Parse(Calendar{ID: "work"}, crlf(feed))
	require.NoError(t, err)

	occs, err := Expand(events, Range{
		From:     utc("2025-03-10T00:00:00Z"),
		To:       utc("2025-03-17T00:00:00Z"),
		Location: time.UTC,
	})
	require.NoError(t, err)

	var standups []model.Occurrence
	for _, o := range occs {
		if o.UID == "standup@example.com" {
			standups = append(standups, o)
		}
	}
	require.Len(t, standups, 4)
	days := make([]string, 0, len(standups))
	for _, o := range standups {
		days = append(days, o.Start.Format("2006-01-02 15:04"))
	}
	assert.Equal(t, []string{
		"2025-03-10 08:00",
		"2025-03-11 08:00",
		"2025-03-13 09:00",
		"2025-03-14 08:00",
	}, days)
	assert.Equal(t, "Standup (verplaatst)", standups[2].Summary)
	assert.Equal(t, "2025-03-13T08:00:00Z", standups[2].InstanceKey)

	for i := 1; i < len(occs); i++ {
		assert.False(t, occs[i].Start.Before(occs[i-1].Start))
	}
}

func TestExpand_RangeIsHalfOpen(t *testing.T) {
	ev := Event{UID: "a", Start: utc("2025-03-11T09:00:00Z"), End: utc("2025-03-11T10:00:00Z")}

	in, err := Expand([]Event{ev}, Range{From: utc("2025-03-11T09:30:00Z"), To: utc("2025-03-11T12:00:00Z"), Location: time.UTC})
	require.NoError(t, err)
	assert.Len(t, in, 1)

	touching, err := Expand([]Event{ev}, Range{From: utc("2025-03-11T10:00:00Z"), To: utc("2025-03-11T12:00:00Z"), Location: time.UTC})
	require.NoError(t, err)
	assert.Empty(t, touching)

	_, err = Expand(nil, Range{From: utc("2025-03-12T00:00:00Z"), To: utc("2025-03-11T00:00:00Z")})
	assert.Error(t, err)
}

func TestTaskFromOccurrence(t *testing.T) {
	occ := model.Occurrence{
		SourceID: "work", UID: "late@example.com", InstanceKey: "k",
		Summary: "Nachtdienst",
		Start:   utc("2025-03-11T22:00:00Z"),
		End:     utc("2025-03-12T01:00:00Z"),
	}
	task, ok := TaskFromOccurrence(occ)
	require.True(t, ok)
	assert.Equal(t, "2025-03-11", task.Date)
	assert.Equal(t, "22:00", task.StartAt)
	assert.Equal(t, "23:59", task.EndAt)
	assert.Equal(t, model.WorkFreeTask, task.Type)
	assert.Equal(t, "Nachtdienst", task.Description)
	assert.Equal(t, "ics:work", task.Source)
	assert.True(t, task.ReadOnly())

	again, _ := TaskFromOccurrence(occ)
	assert.Equal(t, task.ID, again.ID)

	occ.AllDay = true
	_, ok = TaskFromOccurrence(occ)
	assert.False(t, ok)
}

func TestFetcher_UsesValidatorsAndCache(t *testing.T) {
	var hits, conditional atomic.Int32
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if down.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	cal := Calendar{ID: "work", URL: srv.URL + "/private/secret.ics"}
	ctx := context.Background()

	body, fromCache, err := f.Fetch(ctx, cal)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Contains(t, string(body), "Standup")

	body, fromCache, err = f.Fetch(ctx, cal)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, int32(1), conditional.Load())
	assert.Contains(t, string(body), "Standup")

	down.Store(true)
	body, fromCache, err = f.Fetch(ctx, cal)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.NotEmpty(t, body)
	assert.Equal(t, int32(3), hits.Load())

	_, _, err = NewFetcher(t.TempDir()).Fetch(ctx, cal)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/u/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestImporter_UpsertsAndRemovesStale(t *testing.T) {
	body := atomic.Value{}
	body.Store(crlf(feed))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body.Load().([]byte))
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := filestore.Open(ctx, filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)
	defer st.Close(ctx)

	im := &Importer{
		Fetcher:  NewFetcher(t.TempDir()),
		Tasks:    st.Tasks(),
		OwnerID:  "owner",
		Location: time.UTC,
		Days:     3,
		now:      func() time.Time { return utc("2025-03-11T06:00:00Z") },
	}
	cals := []Calendar{{ID: "work", URL: srv.URL}}

	results, err := im.Run(ctx, cals)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Upserted)
	assert.Equal(t, 0, results[0].Removed)

	day, err := st.Tasks().ListByDate(ctx, "owner", "2025-03-11")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "08:00", day[0].StartAt)
	assert.Equal(t, "08:15", day[0].EndAt)
	assert.Equal(t, "22:00", day[1].StartAt)
	assert.Equal(t, "23:59", day[1].EndAt)

	// Re-running is idempotent.
	_, err = im.Run(ctx, cals)
	require.NoError(t, err)
	day, err = st.Tasks().ListByDate(ctx, "owner", "2025-03-11")
	require.NoError(t, err)
	assert.Len(t, day, 2)

	// The night shift is cancelled upstream.
	trimmed := strings.Replace(feed, `BEGIN:VEVENT
UID:late@example.com
DTSTAMP:20250301T000000Z
DTSTART:20250311T220000Z
DTEND:20250312T010000Z
SUMMARY:Nachtdienst
END:VEVENT
`, "", 1)
	body.Store(crlf(trimmed))

	results, err = im.Run(ctx, cals)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Removed)
	day, err = st.Tasks().ListByDate(ctx, "owner", "2025-03-11")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "08:00", day[0].StartAt)
}

func TestImporter_ReportsFailingCalendar(t *testing.T) {
	ctx := context.Background()
	st, err := filestore.Open(ctx, filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)
	defer st.Close(ctx)

	im := &Importer{Fetcher: NewFetcher(t.TempDir()), Tasks: st.Tasks(), OwnerID: "owner", Location: time.UTC}
	results, err := im.Run(ctx, []Calendar{{ID: "broken", URL: ""}})
	assert.Error(t, err)
	assert.Empty(t, results)
}
