package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dayplan/internal/log"
)

// Event is one VEVENT, before recurrence expansion.
type Event struct {
	CalendarID string

	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on an override of one instance of a series.
	RecurrenceID *time.Time
}

// Parse decodes an ICS payload. Events that cannot be read are logged and
// skipped; only an unreadable calendar is an error.
func Parse(cal Calendar, body []byte) ([]Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}
	parsed, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", cal.ID, err)
	}

	events := make([]Event, 0, len(parsed.Events()))
	for _, ve := range parsed.Events() {
		ev, err := parseEvent(cal, ve)
		if err != nil {
			appLog.Warn("ics: skipping event", "id", cal.ID, "err", err.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics parse completed", "id", cal.ID, "events", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func param(params map[string][]string, name string) string {
	if vs := params[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func parseEvent(cal Calendar, ve *ical.VEvent) (Event, error) {
	ev := Event{
		CalendarID: cal.ID,
		UID:        propValue(ve, ical.ComponentPropertyUniqueId),
		Summary:    strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary)),
		Location:   strings.TrimSpace(propValue(ve, ical.ComponentPropertyLocation)),
		RRule:      propValue(ve, ical.ComponentPropertyRrule),
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, fmt.Errorf("event %s: missing DTSTART", ev.UID)
	}
	ev.AllDay = strings.EqualFold(param(dtStart.ICalParameters, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T")

	var err error
	if ev.AllDay {
		ev.Start, err = ve.GetAllDayStartAt()
	} else {
		ev.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.UID, err)
	}

	if ev.AllDay {
		ev.End, err = ve.GetAllDayEndAt()
	} else {
		ev.End, err = ve.GetEndAt()
	}
	switch {
	case err != nil && ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	case err != nil:
		ev.End = ev.Start
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}

	loc := ev.Start.Location()
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, param(p.ICalParameters, "TZID"), loc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil {
		t, err := parseICSTime(rid.Value, param(rid.ICalParameters, "TZID"), loc)
		if err != nil {
			return ev, fmt.Errorf("event %s: RECURRENCE-ID: %w", ev.UID, err)
		}
		ev.RecurrenceID = &t
	}
	return ev, nil
}

// parseICSTime reads a DATE or DATE-TIME value. Floating times use tzid if
// it names a known zone, else fallback.
func parseICSTime(v, tzid string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	loc := fallback
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if loc == nil {
		loc = time.Local
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
