package issues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the record store adapter every issue operation goes through.
type Store interface {
	Insert(ctx context.Context, in NewIssue, status Status, urgency Urgency, createdAt time.Time) (int64, error)
	List(ctx context.Context, q Query) ([]IssueSummary, error)
	Image(ctx context.Context, id int64, slot Slot) ([]byte, error)
	SetImage(ctx context.Context, id int64, slot Slot, data []byte) error
	// UpdateLifecycle writes status, urgency and (when non-nil) the after
	// image in one statement. A non-empty allowedFrom restricts the update to
	// rows whose current status is in the list.
	UpdateLifecycle(ctx context.Context, t Transition, allowedFrom []Status) error
}

// SQLStore implements Store with parameterized statements over database/sql.
// In production the *sql.DB is the gorm-owned Postgres pool.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) ph(n int) string { return s.dialect.Placeholder(n) }

func (s *SQLStore) Insert(ctx context.Context, in NewIssue, status Status, urgency Urgency, createdAt time.Time) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO issues (username, category, description, latitude, longitude, status, urgency, image, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		RETURNING id`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		nullString(in.Username),
		in.Category,
		in.Description,
		nullFloat(in.Latitude),
		nullFloat(in.Longitude),
		string(status),
		string(urgency),
		nullBytes(in.Image),
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert issue: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *SQLStore) List(ctx context.Context, q Query) ([]IssueSummary, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list issues: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := []IssueSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan issue: %v", ErrStoreUnavailable, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list issues: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *SQLStore) Image(ctx context.Context, id int64, slot Slot) ([]byte, error) {
	query := fmt.Sprintf("SELECT %s FROM issues WHERE id = %s", slot.column(), s.ph(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: issue %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s image: %v", ErrStoreUnavailable, slot, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: issue %d has no %s image", ErrNotFound, id, slot)
	}
	return data, nil
}

func (s *SQLStore) SetImage(ctx context.Context, id int64, slot Slot, data []byte) error {
	query := fmt.Sprintf("UPDATE issues SET %s = %s WHERE id = %s", slot.column(), s.ph(1), s.ph(2))

	res, err := s.db.ExecContext(ctx, query, nullBytes(data), id)
	if err != nil {
		return fmt.Errorf("%w: store %s image: %v", ErrStoreUnavailable, slot, err)
	}
	return requireRow(res, id)
}

func (s *SQLStore) UpdateLifecycle(ctx context.Context, t Transition, allowedFrom []Status) error {
	setClauses := []string{}
	args := []any{}

	args = append(args, string(t.Status))
	setClauses = append(setClauses, "status = "+s.ph(len(args)))
	args = append(args, string(t.Urgency))
	setClauses = append(setClauses, "urgency = "+s.ph(len(args)))
	if t.AfterImage != nil {
		args = append(args, nullBytes(t.AfterImage))
		setClauses = append(setClauses, "after_image = "+s.ph(len(args)))
	}

	args = append(args, t.ID)
	where := "id = " + s.ph(len(args))
	if len(allowedFrom) > 0 {
		from := make([]string, len(allowedFrom))
		for i, st := range allowedFrom {
			from[i] = string(st)
		}
		clause, extra := s.dialect.anyOf("COALESCE(status, 'Pending')", from, len(args)+1)
		where += " AND " + clause
		args = append(args, extra...)
	}

	query := fmt.Sprintf("UPDATE issues SET %s WHERE %s", strings.Join(setClauses, ", "), where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update issue %d: %v", ErrStoreUnavailable, t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update issue %d: %v", ErrStoreUnavailable, t.ID, err)
	}
	if n > 0 {
		return nil
	}
	if len(allowedFrom) == 0 {
		return fmt.Errorf("%w: issue %d", ErrNotFound, t.ID)
	}

	// Zero rows under a guarded update: either the id is unknown or the
	// current status is not an allowed origin.
	exists, err := s.exists(ctx, t.ID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: issue %d", ErrNotFound, t.ID)
	}
	return fmt.Errorf("%w: issue %d to %s", ErrInvalidTransition, t.ID, t.Status)
}

func (s *SQLStore) exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM issues WHERE id = "+s.ph(1), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup issue %d: %v", ErrStoreUnavailable, id, err)
	}
	return true, nil
}

// --- Reporting reads -------------------------------------------------------

// Count returns the number of issues.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count issues: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// CountBy groups issues by one of the filter columns. NULL values are
// reported under the empty key.
func (s *SQLStore) CountBy(ctx context.Context, field Field) (map[string]int64, error) {
	switch field {
	case FieldCategory, FieldStatus, FieldUrgency:
	default:
		return nil, fmt.Errorf("%w: cannot group by %q", ErrValidation, field)
	}

	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM issues GROUP BY %s", field, field)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: count by %s: %v", ErrStoreUnavailable, field, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var key sql.NullString
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("%w: count by %s: %v", ErrStoreUnavailable, field, err)
		}
		out[key.String] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: count by %s: %v", ErrStoreUnavailable, field, err)
	}
	return out, nil
}

// CountStatusIn counts issues whose effective status is one of statuses.
func (s *SQLStore) CountStatusIn(ctx context.Context, statuses []Status) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	clause, args := s.dialect.anyOf("COALESCE(status, 'Pending')", values, 1)

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues WHERE "+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count open issues: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// CreatedSince returns creation timestamps at or after since.
func (s *SQLStore) CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT created_at FROM issues WHERE created_at >= "+s.ph(1), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: created since: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: created since: %v", ErrStoreUnavailable, err)
		}
		out = append(out, parseTime(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: created since: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// Recent returns the newest issues by creation time.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]IssueSummary, error) {
	query := fmt.Sprintf("SELECT %s FROM issues ORDER BY created_at DESC, id DESC LIMIT %s", summaryColumns, s.ph(1))
	sums, err := s.List(ctx, Query{SQL: query, Args: []any{limit}})
	if err != nil {
		return nil, err
	}
	for i := range sums {
		sums[i].normalize()
	}
	return sums, nil
}

// --- scanning helpers --------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (IssueSummary, error) {
	var (
		sum                       IssueSummary
		username, status, urgency sql.NullString
		description               sql.NullString
		lat, lng                  sql.NullFloat64
		createdAt                 any
	)
	if err := row.Scan(
		&sum.ID,
		&username,
		&sum.Category,
		&description,
		&lat,
		&lng,
		&status,
		&urgency,
		&sum.HasBefore,
		&sum.HasAfter,
		&createdAt,
	); err != nil {
		return IssueSummary{}, err
	}

	sum.Username = username.String
	sum.Description = description.String
	sum.Status = Status(status.String)
	sum.Urgency = Urgency(urgency.String)
	if lat.Valid {
		v := lat.Float64
		sum.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		sum.Longitude = &v
	}
	sum.CreatedAt = parseTime(createdAt)
	return sum, nil
}

// parseTime accepts what either driver hands back for a timestamp column:
// pgx returns time.Time, SQLite may return the stored text.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	}
	return time.Time{}
}

func parseTimeString(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: issue %d", ErrNotFound, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
