package model

import "time"

// Occurrence is a single concrete instance of an external calendar event
// after recurrence expansion and timezone normalization. The ICS importer
// turns occurrences into read-only tasks.
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}
