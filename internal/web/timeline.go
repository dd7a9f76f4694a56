package web

import (
	"context"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dayplan/internal/dayview"
	appLog "dayplan/internal/log"
	"dayplan/internal/render"
)

// timelineTTL bounds how stale a cached view can get when the store is
// changed by something other than this server, e.g. the ICS importer.
const timelineTTL = 30 * time.Second

// timelineBuildTimeout bounds a shared build, which no longer follows the
// context of the request that started it.
const timelineBuildTimeout = 10 * time.Second

type cacheKey struct {
	owner string
	date  string
}

type timelineEntry struct {
	view    dayview.View
	expires time.Time
}

// dayView returns the laid out view for owner and date, from cache when
// fresh.
func (s *Server) dayView(ctx context.Context, owner, date string) (dayview.View, error) {
	key := cacheKey{owner: owner, date: date}
	now := s.now()

	s.timelineMu.RLock()
	e, ok := s.timelineCache[key]
	gen := s.timelineGen[owner]
	s.timelineMu.RUnlock()
	if ok && now.Before(e.expires) {
		return e.view, nil
	}

	// Concurrent misses for the same day and generation share one store
	// query. A miss after a write never joins a build that began before it.
	flightKey := owner + "|" + date + "|" + strconv.FormatUint(gen, 10)
	res, err, _ := s.flight.Do(flightKey, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timelineBuildTimeout)
		defer cancel()

		tasks, err := s.store.Tasks().ListByDate(bctx, owner, date)
		if err != nil {
			return nil, err
		}
		v := dayview.Build(date, tasks, dayview.OptionsFromConfig(s.cfg))

		s.timelineMu.Lock()
		if s.timelineGen[owner] == gen {
			s.timelineCache[key] = timelineEntry{view: v, expires: now.Add(timelineTTL)}
		}
		s.timelineMu.Unlock()
		appLog.Debug("timeline built", "owner", owner, "date", date, "blocks", len(v.Blocks))
		return v, nil
	})
	if err != nil {
		return dayview.View{}, err
	}
	return res.(dayview.View), nil
}

// invalidateTimeline drops every cached date of owner. An update may move
// a task between dates, so the whole owner is cleared. Builds still in
// flight for owner will not be cached.
func (s *Server) invalidateTimeline(owner string) {
	s.timelineMu.Lock()
	defer s.timelineMu.Unlock()
	s.timelineGen[owner]++
	for k := range s.timelineCache {
		if k.owner == owner {
			delete(s.timelineCache, k)
		}
	}
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	v, err := s.dayView(r.Context(), ownerFrom(r.Context()), date)
	if err != nil {
		writeStoreError(w, err, "timeline")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleTap maps a tap at ?y= (px from the top of the track) to the start
// time a new task would get.
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	y, err := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid y")
		return
	}
	v, err := s.dayView(r.Context(), ownerFrom(r.Context()), date)
	if err != nil {
		writeStoreError(w, err, "tap")
		return
	}

	type tapResp struct {
		Date    string `json:"date"`
		StartAt string `json:"start_at"`
	}
	writeJSON(w, http.StatusOK, tapResp{Date: date, StartAt: v.TapToClock(y)})
}

func (s *Server) handleDaySVG(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	v, err := s.dayView(r.Context(), ownerFrom(r.Context()), date)
	if err != nil {
		writeStoreError(w, err, "day svg")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(render.SVG(v)))
}

var dayPage = template.Must(template.New("day").Parse(`<!DOCTYPE html>
<html lang="nl">
<head>
<meta charset="utf-8">
<title>Planning {{.Date}}</title>
<style>
html, body { margin: 0; background: #FFFFFF; }
main { width: {{.Width}}px; }
</style>
</head>
<body>
<main data-date="{{.Date}}" data-ready="true">{{.SVG}}</main>
</body>
</html>
`))

// handleDayPage serves the page the capture screenshots. data-ready is
// set once the SVG is in the document.
func (s *Server) handleDayPage(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	v, err := s.dayView(r.Context(), ownerFrom(r.Context()), date)
	if err != nil {
		writeStoreError(w, err, "day page")
		return
	}

	svg := render.SVG(v)
	if i := strings.Index(svg, "<svg"); i >= 0 {
		svg = svg[i:]
	}
	data := struct {
		Date  string
		Width float64
		SVG   template.HTML
	}{
		Date:  v.Date,
		Width: render.LabelWidth + v.WidthPx,
		// render.SVG escapes all task text.
		SVG: template.HTML(svg),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := dayPage.Execute(w, data); err != nil {
		appLog.Error("failed to render day page", err, "date", date)
	}
}
