package mapview

import "github.com/EmpoweredVote/meresahar/internal/issues"

// Encoding is how a marker is drawn for a given status.
type Encoding struct {
	Status issues.Status `json:"status"`
	Color  string        `json:"color"`
	Icon   string        `json:"icon"`
}

var (
	pendingEncoding   = Encoding{Status: issues.StatusPending, Color: "#d63e2a", Icon: "marker-red"}
	ongoingEncoding   = Encoding{Status: issues.StatusOngoing, Color: "#f69730", Icon: "marker-orange"}
	completedEncoding = Encoding{Status: issues.StatusCompleted, Color: "#72b026", Icon: "marker-green"}
)

// Encode maps a status to its marker style. Empty and unrecognized statuses
// draw as Pending.
func Encode(status issues.Status) Encoding {
	switch status {
	case issues.StatusOngoing:
		return ongoingEncoding
	case issues.StatusCompleted:
		return completedEncoding
	}
	return pendingEncoding
}

// Legend lists the encodings in lifecycle order.
func Legend() []Encoding {
	return []Encoding{pendingEncoding, ongoingEncoding, completedEncoding}
}
