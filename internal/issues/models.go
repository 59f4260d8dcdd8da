package issues

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSlot       = errors.New("invalid image slot")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStoreUnavailable  = errors.New("record store unavailable")
)

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
)

// Statuses in lifecycle order.
var Statuses = []Status{StatusPending, StatusOngoing, StatusCompleted}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// NormalizeStatus applies the read-boundary default for rows stored before
// the column existed.
func NormalizeStatus(s string) Status {
	if s == "" {
		return StatusPending
	}
	return Status(s)
}

// Urgency is the triage priority set by administrators.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}

func ParseUrgency(s string) (Urgency, error) {
	for _, u := range Urgencies {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: unknown urgency %q", ErrValidation, s)
}

func NormalizeUrgency(s string) Urgency {
	if s == "" {
		return UrgencyLow
	}
	return Urgency(s)
}

// Slot is one of the two independent image attachment points on a record.
type Slot string

const (
	SlotBefore Slot = "before"
	SlotAfter  Slot = "after"
)

func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotBefore, SlotAfter:
		return Slot(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

// column maps a slot to its storage column. Only these two names ever reach SQL.
func (s Slot) column() string {
	if s == SlotAfter {
		return "after_image"
	}
	return "image"
}

// Issue is the persisted record. It is used for schema migration; reads go
// through IssueSummary so image bytes never leave the store with a listing.
type Issue struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username    *string   `gorm:"size:255" json:"username"`
	Category    string    `gorm:"not null;index" json:"category"`
	Description string    `gorm:"type:text" json:"description"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Status      *string   `gorm:"size:32;index" json:"status"`
	Urgency     *string   `gorm:"size:32;index" json:"urgency"`
	Image       []byte    `gorm:"type:bytea" json:"-"`
	AfterImage  []byte    `gorm:"type:bytea" json:"-"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (Issue) TableName() string { return "issues" }

// IssueSummary is the listing projection of a record.
type IssueSummary struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Status      Status    `json:"status"`
	Urgency     Urgency   `json:"urgency"`
	HasBefore   bool      `json:"has_before"`
	HasAfter    bool      `json:"has_after"`
	CreatedAt   time.Time `json:"created_at"`
}

// Located reports whether the issue can be placed on a map.
func (s IssueSummary) Located() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// HasImage reports whether the given slot holds bytes.
func (s IssueSummary) HasImage(slot Slot) bool {
	if slot == SlotAfter {
		return s.HasAfter
	}
	return s.HasBefore
}

func (s *IssueSummary) normalize() {
	s.Status = NormalizeStatus(string(s.Status))
	s.Urgency = NormalizeUrgency(string(s.Urgency))
}

// NewIssue is a citizen submission.
type NewIssue struct {
	Username    string
	Category    string
	Description string
	Latitude    *float64
	Longitude   *float64
	Image       []byte
}

// Transition is an administrator update. A nil AfterImage leaves the stored
// after-photo untouched.
type Transition struct {
	ID         int64
	Status     Status
	Urgency    Urgency
	AfterImage []byte
}
