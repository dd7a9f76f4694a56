package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/store"
)

// lastMinute is where an occurrence running past midnight is cut off.
const lastMinute = "23:59"

// SourcePrefix marks tasks created by the importer. Task.Source is
// SourcePrefix followed by the calendar ID.
const SourcePrefix = "ics:"

// Importer mirrors calendar occurrences into read-only tasks.
type Importer struct {
	Fetcher  *Fetcher
	Tasks    store.TaskRepository
	OwnerID  string
	Location *time.Location
	// Days is the number of days, starting today, that are mirrored.
	Days int

	now func() time.Time
}

// Result summarizes one calendar's import.
type Result struct {
	Calendar  string
	FromCache bool
	Upserted  int
	Removed   int
	// Skipped counts all-day occurrences, which have no clock span.
	Skipped int
}

// Run imports every calendar. A failing calendar does not stop the
// others; all failures are joined into the returned error.
func (im *Importer) Run(ctx context.Context, cals []Calendar) ([]Result, error) {
	if err := store.RequireOwner(im.OwnerID); err != nil {
		return nil, err
	}
	loc := im.Location
	if loc == nil {
		loc = time.Local
	}
	days := max(1, im.Days)
	now := time.Now
	if im.now != nil {
		now = im.now
	}
	today := now().In(loc)
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, days)

	results := make([]Result, 0, len(cals))
	var errs []error
	for _, cal := range cals {
		res, err := im.importCalendar(ctx, cal, from, to, loc)
		if err != nil {
			appLog.Error("ics import failed", err, "id", cal.ID, "url", redactURL(cal.URL))
			errs = append(errs, fmt.Errorf("calendar %s: %w", cal.ID, err))
			continue
		}
		appLog.Info("ics import completed", "id", cal.ID, "from_cache", res.FromCache,
			"upserted", res.Upserted, "removed", res.Removed, "skipped", res.Skipped)
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (im *Importer) importCalendar(ctx context.Context, cal Calendar, from, to time.Time, loc *time.Location) (Result, error) {
	res := Result{Calendar: cal.ID}

	body, fromCache, err := im.Fetcher.Fetch(ctx, cal)
	if err != nil {
		return res, err
	}
	res.FromCache = fromCache

	events, err := Parse(cal, body)
	if err != nil {
		return res, err
	}
	occs, err := Expand(events, Range{From: from, To: to, Location: loc})
	if err != nil {
		return res, err
	}

	keep := make(map[string]bool, len(occs))
	for _, occ := range occs {
		t, ok := TaskFromOccurrence(occ)
		if !ok {
			res.Skipped++
			continue
		}
		if _, err := im.Tasks.Upsert(ctx, im.OwnerID, t); err != nil {
			return res, fmt.Errorf("upsert %s: %w", t.ID, err)
		}
		keep[t.ID] = true
		res.Upserted++
	}

	// Drop tasks whose occurrence disappeared from the feed.
	source := SourcePrefix + cal.ID
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		existing, err := im.Tasks.ListByDate(ctx, im.OwnerID, day.Format(model.DateLayout))
		if err != nil {
			return res, err
		}
		for _, t := range existing {
			if t.Source != source || keep[t.ID] {
				continue
			}
			if err := im.Tasks.Delete(ctx, im.OwnerID, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return res, fmt.Errorf("remove %s: %w", t.ID, err)
			}
			res.Removed++
		}
	}
	return res, nil
}

// TaskFromOccurrence converts an occurrence into the task shown on its start
// date. An occurrence that runs past midnight ends at 23:59. All-day
// occurrences yield ok == false.
func TaskFromOccurrence(occ model.Occurrence) (model.Task, bool) {
	if occ.AllDay {
		return model.Task{}, false
	}
	start, end := occ.Start, occ.End
	t := model.Task{
		ID:          model.StableID("ics", occ.SourceID, occ.UID, occ.InstanceKey),
		Date:        start.Format(model.DateLayout),
		StartAt:     start.Format("15:04"),
		EndAt:       end.Format("15:04"),
		Type:        model.WorkFreeTask,
		Description: occ.Summary,
		Source:      SourcePrefix + occ.SourceID,
	}
	if end.Format(model.DateLayout) != t.Date {
		t.EndAt = lastMinute
	}
	return t, true
}
