package mapview

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/meresahar/internal/issues"
)

// SlotState is the display state of one popup image.
type SlotState string

const (
	SlotLoading     SlotState = "loading"
	SlotLoaded      SlotState = "loaded"
	SlotUnavailable SlotState = "unavailable"
)

const (
	LoadingText     = "Loading…"
	UnavailableText = "Image unavailable"
	NoImagesText    = "No images uploaded yet"
	AnonymousName   = "Anonymous"
)

// PopupSlot is the placeholder for one image slot. Data is filled in by a
// Loader and never serialized.
type PopupSlot struct {
	Slot    issues.Slot `json:"slot"`
	Label   string      `json:"label"`
	URL     string      `json:"url"`
	State   SlotState   `json:"state"`
	Message string      `json:"message,omitempty"`
	Data    []byte      `json:"-"`
}

type Popup struct {
	IssueID     int64          `json:"issue_id"`
	Title       string         `json:"title"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Status      issues.Status  `json:"status"`
	Urgency     issues.Urgency `json:"urgency"`
	Location    string         `json:"location"`
	Encoding    Encoding       `json:"encoding"`
	Slots       []PopupSlot    `json:"slots"`

	// Empty holds the no-images message when neither slot has bytes.
	Empty string `json:"empty,omitempty"`
}

// ImageURLFunc builds the fetch URL for a slot.
type ImageURLFunc func(id int64, slot issues.Slot) string

// ImageURL returns the default ImageURLFunc rooted at base, e.g. "/issues".
func ImageURL(base string) ImageURLFunc {
	base = strings.TrimRight(base, "/")
	return func(id int64, slot issues.Slot) string {
		return fmt.Sprintf("%s/%d/images/%s", base, id, slot)
	}
}

// NewPopup builds the popup for an issue with every present slot in the
// loading state. No image request is made here.
func NewPopup(row issues.IssueSummary, imageURL ImageURLFunc) Popup {
	status := issues.NormalizeStatus(string(row.Status))
	p := Popup{
		IssueID:     row.ID,
		Title:       row.Username,
		Category:    row.Category,
		Description: row.Description,
		Status:      status,
		Urgency:     issues.NormalizeUrgency(string(row.Urgency)),
		Location:    formatLocation(row.Latitude, row.Longitude),
		Encoding:    Encode(status),
		Slots:       []PopupSlot{},
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = AnonymousName
	}

	for _, slot := range []issues.Slot{issues.SlotBefore, issues.SlotAfter} {
		if !row.HasImage(slot) {
			continue
		}
		p.Slots = append(p.Slots, PopupSlot{
			Slot:    slot,
			Label:   slotLabel(slot),
			URL:     imageURL(row.ID, slot),
			State:   SlotLoading,
			Message: LoadingText,
		})
	}
	if len(p.Slots) == 0 {
		p.Empty = NoImagesText
	}
	return p
}

func slotLabel(slot issues.Slot) string {
	if slot == issues.SlotAfter {
		return "After"
	}
	return "Before"
}

func formatLocation(lat, lng *float64) string {
	f := func(v *float64) string {
		if v == nil {
			return "unknown"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return "(" + f(lat) + ", " + f(lng) + ")"
}
