package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
)

const defaultMaxPerSeries = 2000

// Range bounds an expansion. From is inclusive, To exclusive.
type Range struct {
	From, To time.Time
	// Location is the zone occurrences are reported in; nil means time.Local.
	Location *time.Location
	// MaxPerSeries caps occurrences of one recurring series.
	MaxPerSeries int
}

// Expand turns events into concrete occurrences overlapping r. Series are
// expanded with their RRULE and EXDATEs; an override (RECURRENCE-ID)
// replaces the instance it names. The result is ordered by start.
func Expand(events []Event, r Range) ([]model.Occurrence, error) {
	if r.To.Before(r.From) {
		return nil, errors.New("ics: range ends before it starts")
	}
	if r.Location == nil {
		r.Location = time.Local
	}
	if r.MaxPerSeries <= 0 {
		r.MaxPerSeries = defaultMaxPerSeries
	}

	overrides := make(map[string][]Event)
	var bases []Event
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	out := []model.Occurrence{}
	for _, ev := range bases {
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, r) {
				out = append(out, occurrence(ev, ev.Start, ev.Start, ev.End, r.Location))
			}
			continue
		}
		out = append(out, expandSeries(ev, overrides[ev.UID], r)...)
	}

	slices.SortStableFunc(out, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	return out, nil
}

func expandSeries(ev Event, overrides []Event, r Range) []model.Occurrence {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("ics: bad RRULE; skipping series", "uid", ev.UID, "rrule", ev.RRule, "err", err.Error())
		return nil
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	// Widen the lower bound by one duration so a series instance that
	// started before From but is still running is included.
	starts := set.Between(r.From.Add(-dur).In(loc), r.To.In(loc), true)
	if len(starts) > r.MaxPerSeries {
		appLog.Warn("ics: series truncated", "uid", ev.UID, "cap", r.MaxPerSeries)
		starts = starts[:r.MaxPerSeries]
	}

	out := make([]model.Occurrence, 0, len(starts))
	for _, start := range starts {
		inst, s, e := ev, start, start.Add(dur)
		if o, ok := findOverride(overrides, start); ok {
			inst, s, e = o, o.Start, o.End
		}
		if overlaps(s, e, r) {
			out = append(out, occurrence(inst, start, s, e, r.Location))
		}
	}
	return out
}

func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

// overlaps reports whether [start, end) meets [r.From, r.To). A zero-length
// event counts when its instant lies inside the range.
func overlaps(start, end time.Time, r Range) bool {
	if !end.After(start) {
		return !start.Before(r.From) && start.Before(r.To)
	}
	return start.Before(r.To) && end.After(r.From)
}

// occurrence keys the instance by its series start, so a moved override
// keeps the identity of the slot it replaces.
func occurrence(ev Event, key, start, end time.Time, loc *time.Location) model.Occurrence {
	start, end = start.In(loc), end.In(loc)
	return model.Occurrence{
		SourceID:    ev.CalendarID,
		UID:         ev.UID,
		InstanceKey: key.UTC().Format(time.RFC3339),
		Summary:     ev.Summary,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}
