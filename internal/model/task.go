// Package model holds the documents stored for the planner owner: tasks,
// clients and imported calendar occurrences.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the YYYY-MM-DD form used for Task.Date.
const DateLayout = "2006-01-02"

// Task is a time-boxed piece of work on one day. StartAt and EndAt are
// "HH:MM" clock strings; older records may be missing EndAt.
type Task struct {
	ID          string    `json:"id" yaml:"id" bson:"id" firestore:"-"`
	OwnerID     string    `json:"owner_id" yaml:"owner_id" bson:"ownerId" firestore:"ownerId"`
	ClientID    string    `json:"client_id" yaml:"client_id" bson:"clientId" firestore:"clientId"`
	Date        string    `json:"date" yaml:"date" bson:"date" firestore:"date"`
	StartAt     string    `json:"start_at" yaml:"start_at" bson:"startAt" firestore:"startAt"`
	EndAt       string    `json:"end_at,omitempty" yaml:"end_at,omitempty" bson:"endAt,omitempty" firestore:"endAt,omitempty"`
	Type        string    `json:"type" yaml:"type" bson:"type" firestore:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" bson:"description,omitempty" firestore:"description,omitempty"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty" bson:"source,omitempty" firestore:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at" bson:"updatedAt" firestore:"updatedAt"`
}

// ReadOnly reports whether the task was imported from an external
// calendar and must not be edited through the API.
func (t Task) ReadOnly() bool { return t.Source != "" }

// Title is the label drawn on the timeline block.
func (t Task) Title() string {
	if d := strings.TrimSpace(t.Description); d != "" {
		return d
	}
	return "Taak"
}

// Client is a customer of the business.
type Client struct {
	ID          string    `json:"id" yaml:"id" bson:"id" firestore:"-"`
	OwnerID     string    `json:"owner_id" yaml:"owner_id" bson:"ownerId" firestore:"ownerId"`
	Type        string    `json:"type" yaml:"type" bson:"type" firestore:"type"`
	Name        string    `json:"name" yaml:"name" bson:"name" firestore:"name"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty" bson:"email,omitempty" firestore:"email,omitempty"`
	Phone       string    `json:"phone,omitempty" yaml:"phone,omitempty" bson:"phone,omitempty" firestore:"phone,omitempty"`
	AddressLine string    `json:"address_line" yaml:"address_line" bson:"addressLine" firestore:"addressLine"`
	PostalCode  string    `json:"postal_code,omitempty" yaml:"postal_code,omitempty" bson:"postalCode,omitempty" firestore:"postalCode,omitempty"`
	City        string    `json:"city,omitempty" yaml:"city,omitempty" bson:"city,omitempty" firestore:"city,omitempty"`
	Notes       string    `json:"notes,omitempty" yaml:"notes,omitempty" bson:"notes,omitempty" firestore:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at" bson:"updatedAt" firestore:"updatedAt"`
}

const (
	ClientTypeBusiness = "Zakelijk"
	ClientTypePrivate  = "Particulier"
)

// NewID returns a random document ID.
func NewID() string {
	return uuid.New().String()
}

// StableID derives a deterministic ID from parts, so repeated imports of
// the same external event update one document instead of adding more.
func StableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "\x00"))).String()
}
