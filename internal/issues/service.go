package issues

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/EmpoweredVote/meresahar/internal/metrics"
)

// TransitionPolicy decides which current statuses may move to a target.
type TransitionPolicy int

const (
	// Permissive lets any status overwrite any other.
	Permissive TransitionPolicy = iota
	// ForwardOnly allows Pending→Ongoing→Completed plus staying put.
	ForwardOnly
)

// allowedFrom returns the statuses a record may currently hold for a move to
// target. nil means unrestricted.
func (p TransitionPolicy) allowedFrom(target Status) []Status {
	if p != ForwardOnly {
		return nil
	}
	switch target {
	case StatusPending:
		return []Status{StatusPending}
	case StatusOngoing:
		return []Status{StatusPending, StatusOngoing}
	case StatusCompleted:
		return []Status{StatusOngoing, StatusCompleted}
	}
	return nil
}

// Service is the issue lifecycle: submission, listing and administrator
// transitions. All state lives in the Store.
type Service struct {
	store  Store
	images *ImageService
	policy TransitionPolicy
	now    func() time.Time
}

func NewService(store Store, images *ImageService, policy TransitionPolicy) *Service {
	return &Service{
		store:  store,
		images: images,
		policy: policy,
		now:    time.Now,
	}
}

func (s *Service) Images() *ImageService { return s.images }

// Submit creates a Pending/Low record and returns its id.
func (s *Service) Submit(ctx context.Context, in NewIssue) (int64, error) {
	in.Username = clean(in.Username)
	in.Category = clean(in.Category)
	in.Description = norm.NFC.String(in.Description)

	if in.Category == "" {
		return 0, fmt.Errorf("%w: category is required", ErrValidation)
	}
	if len(in.Image) == 0 {
		in.Image = nil
	}

	id, err := s.store.Insert(ctx, in, StatusPending, UrgencyLow, s.now().UTC())
	if err != nil {
		log.Printf("[issues] submit failed: %v", err)
		return 0, err
	}
	metrics.IssuesSubmitted.Inc()
	log.Printf("[issues] created issue %d (%s, image=%t)", id, in.Category, in.Image != nil)
	return id, nil
}

// List returns the records matching every filter, newest first, with status
// and urgency defaults applied.
func (s *Service) List(ctx context.Context, f Filters) ([]IssueSummary, error) {
	q := BuildListQuery(f, s.dialect())
	rows, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].normalize()
	}
	return rows, nil
}

// Issue returns one record's summary.
func (s *Service) Issue(ctx context.Context, id int64) (IssueSummary, error) {
	d := s.dialect()
	q := Query{
		SQL:  fmt.Sprintf("SELECT %s FROM issues WHERE id = %s", summaryColumns, d.Placeholder(1)),
		Args: []any{id},
	}
	rows, err := s.store.List(ctx, q)
	if err != nil {
		return IssueSummary{}, err
	}
	if len(rows) == 0 {
		return IssueSummary{}, fmt.Errorf("%w: issue %d", ErrNotFound, id)
	}
	rows[0].normalize()
	return rows[0], nil
}

// ApplyTransition writes status and urgency, and the after image only when
// one is supplied together with Completed. Otherwise a stored after image is
// left as it is.
func (s *Service) ApplyTransition(ctx context.Context, t Transition) error {
	if _, err := ParseStatus(string(t.Status)); err != nil {
		return err
	}
	if _, err := ParseUrgency(string(t.Urgency)); err != nil {
		return err
	}
	if len(t.AfterImage) == 0 || t.Status != StatusCompleted {
		t.AfterImage = nil
	}

	err := s.store.UpdateLifecycle(ctx, t, s.policy.allowedFrom(t.Status))
	if err != nil {
		metrics.Transitions.WithLabelValues(string(t.Status), outcome(err)).Inc()
		log.Printf("[issues] transition issue %d to %s failed: %v", t.ID, t.Status, err)
		return err
	}
	metrics.Transitions.WithLabelValues(string(t.Status), "ok").Inc()

	if t.AfterImage != nil && s.images != nil {
		s.images.invalidate(ctx, t.ID, SlotAfter)
	}
	log.Printf("[issues] issue %d -> %s/%s (after image=%t)", t.ID, t.Status, t.Urgency, t.AfterImage != nil)
	return nil
}

func (s *Service) dialect() Dialect {
	if d, ok := s.store.(interface{ Dialect() Dialect }); ok {
		return d.Dialect()
	}
	return DialectPostgres
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "rejected"
	}
	return "error"
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
