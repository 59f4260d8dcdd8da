package reporting

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/issues"
	"github.com/EmpoweredVote/meresahar/internal/metrics"
)

// Store is the read-only slice of the record store the report needs.
// *issues.SQLStore implements it.
type Store interface {
	Count(ctx context.Context) (int64, error)
	CountBy(ctx context.Context, field issues.Field) (map[string]int64, error)
	CountStatusIn(ctx context.Context, statuses []issues.Status) (int64, error)
	CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error)
	Recent(ctx context.Context, limit int) ([]issues.IssueSummary, error)
}

const (
	OtherBucket = "other"
	RecentLimit = 10
	TrendDays   = 7
)

// Display orders. Anything not listed lands in the last bucket.
var (
	StatusOrder  = []string{"Pending", "Ongoing", "Completed", OtherBucket}
	UrgencyOrder = []string{"High", "Medium", "Low", OtherBucket}
)

type Bucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Report struct {
	Total      int64                 `json:"total"`
	Open       int64                 `json:"open"`
	ByCategory []Bucket              `json:"by_category"`
	ByStatus   []Bucket              `json:"by_status"`
	ByUrgency  []Bucket              `json:"by_urgency"`
	Last7Days  []DayCount            `json:"last_7_days"`
	Recent     []issues.IssueSummary `json:"recent"`
	Error      bool                  `json:"error"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Summary computes the dashboard report. On any store failure it returns the
// zeroed report with Error set, together with the cause.
func (s *Service) Summary(ctx context.Context) (Report, error) {
	today := startOfDay(s.now())

	r, err := s.build(ctx, today)
	if err != nil {
		metrics.ReportFailures.Inc()
		log.Printf("[reports] summary failed, serving zeroed report: %v", err)
		return Zero(today), err
	}
	return r, nil
}

func (s *Service) build(ctx context.Context, today time.Time) (Report, error) {
	var r Report
	var err error

	if r.Total, err = s.store.Count(ctx); err != nil {
		return r, fmt.Errorf("total: %w", err)
	}
	if r.Open, err = s.store.CountStatusIn(ctx, []issues.Status{issues.StatusPending, issues.StatusOngoing}); err != nil {
		return r, fmt.Errorf("open: %w", err)
	}

	byCategory, err := s.store.CountBy(ctx, issues.FieldCategory)
	if err != nil {
		return r, fmt.Errorf("by category: %w", err)
	}
	r.ByCategory = categoryBuckets(byCategory)

	byStatus, err := s.store.CountBy(ctx, issues.FieldStatus)
	if err != nil {
		return r, fmt.Errorf("by status: %w", err)
	}
	r.ByStatus = OrderedBuckets(StatusOrder, byStatus, func(v string) string {
		return string(issues.NormalizeStatus(v))
	})

	byUrgency, err := s.store.CountBy(ctx, issues.FieldUrgency)
	if err != nil {
		return r, fmt.Errorf("by urgency: %w", err)
	}
	r.ByUrgency = OrderedBuckets(UrgencyOrder, byUrgency, func(v string) string {
		return string(issues.NormalizeUrgency(v))
	})

	start := today.AddDate(0, 0, -(TrendDays - 1))
	created, err := s.store.CreatedSince(ctx, start)
	if err != nil {
		return r, fmt.Errorf("trend: %w", err)
	}
	r.Last7Days = dailyCounts(start, created)

	if r.Recent, err = s.store.Recent(ctx, RecentLimit); err != nil {
		return r, fmt.Errorf("recent: %w", err)
	}
	if r.Recent == nil {
		r.Recent = []issues.IssueSummary{}
	}
	return r, nil
}

// Zero is the degraded report: every bucket present with a zero count.
func Zero(today time.Time) Report {
	today = startOfDay(today)
	return Report{
		ByCategory: []Bucket{},
		ByStatus:   OrderedBuckets(StatusOrder, nil, nil),
		ByUrgency:  OrderedBuckets(UrgencyOrder, nil, nil),
		Last7Days:  dailyCounts(today.AddDate(0, 0, -(TrendDays-1)), nil),
		Recent:     []issues.IssueSummary{},
		Error:      true,
	}
}

// OrderedBuckets folds raw counts into the fixed label order. normalize maps
// a stored value to its display label before lookup; a label not in order
// counts toward the last bucket.
func OrderedBuckets(order []string, counts map[string]int64, normalize func(string) string) []Bucket {
	out := make([]Bucket, len(order))
	index := make(map[string]int, len(order))
	for i, label := range order {
		out[i].Label = label
		index[label] = i
	}

	for raw, n := range counts {
		label := raw
		if normalize != nil {
			label = normalize(raw)
		}
		i, ok := index[label]
		if !ok {
			i = len(order) - 1
		}
		out[i].Count += n
	}
	return out
}

// categoryBuckets sorts free-form categories by count, then name. Rows with
// no category are grouped as other.
func categoryBuckets(counts map[string]int64) []Bucket {
	out := make([]Bucket, 0, len(counts))
	var other int64
	for label, n := range counts {
		if label == "" {
			other += n
			continue
		}
		out = append(out, Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if other > 0 {
		out = append(out, Bucket{Label: OtherBucket, Count: other})
	}
	return out
}

func dailyCounts(start time.Time, created []time.Time) []DayCount {
	out := make([]DayCount, TrendDays)
	index := make(map[string]int, TrendDays)
	for i := range out {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		out[i].Date = day
		index[day] = i
	}
	for _, t := range created {
		if i, ok := index[t.UTC().Format("2006-01-02")]; ok {
			out[i].Count++
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
