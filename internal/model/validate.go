package model

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Dutch form messages, shown verbatim by the app.
const (
	MsgRequired      = "Dit veld is vereist"
	MsgEmail         = "Ongeldig e-mailadres"
	MsgDate          = "Ongeldige datum"
	MsgTime          = "Ongeldige tijd"
	MsgEndAfterStart = "Eindtijd moet na starttijd liggen"
	MsgClientType    = "Ongeldig type"
)

func msgMinLength(n int) string { return fmt.Sprintf("Minimaal %d tekens", n) }

// strictTime is the form rule: always two-digit hours.
var strictTime = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ValidationError maps field names to a message per field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ValidateTask checks a task as submitted by the task form.
func ValidateTask(t Task) error {
	var verr ValidationError

	if strings.TrimSpace(t.ClientID) == "" {
		verr.add("client_id", MsgRequired)
	}
	if t.Date == "" {
		verr.add("date", MsgRequired)
	} else if _, err := time.Parse(DateLayout, t.Date); err != nil {
		verr.add("date", MsgDate)
	}
	if strings.TrimSpace(t.Type) == "" {
		verr.add("type", MsgRequired)
	}

	checkTime := func(field, v string) bool {
		switch {
		case v == "":
			verr.add(field, MsgRequired)
		case !strictTime.MatchString(v):
			verr.add(field, MsgTime)
		default:
			return true
		}
		return false
	}
	startOK := checkTime("start_at", t.StartAt)
	endOK := checkTime("end_at", t.EndAt)
	// Zero-padded 24h clock strings order lexicographically.
	if startOK && endOK && t.StartAt >= t.EndAt {
		verr.add("end_at", MsgEndAfterStart)
	}

	return verr.orNil()
}

// ValidateClient checks a client as submitted by the client form.
func ValidateClient(c Client) error {
	var verr ValidationError

	switch c.Type {
	case ClientTypeBusiness, ClientTypePrivate:
	case "":
		verr.add("type", MsgRequired)
	default:
		verr.add("type", MsgClientType)
	}
	if strings.TrimSpace(c.Name) == "" {
		verr.add("name", MsgRequired)
	}
	if strings.TrimSpace(c.AddressLine) == "" {
		verr.add("address_line", MsgRequired)
	}
	if c.Email != "" {
		if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
			verr.add("email", MsgEmail)
		}
	}
	if c.Phone != "" && len([]rune(c.Phone)) < 10 {
		verr.add("phone", msgMinLength(10))
	}

	return verr.orNil()
}
