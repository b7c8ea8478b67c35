// Package session stores one summary row per relayed TCP connection in
// the relay_sessions table.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcomes stored in the outcome column.
const (
	OutcomeClosed   = "closed"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Session is the stored summary of one accepted connection.
type Session struct {
	ID        string    `json:"id"`
	Peer      string    `json:"peer"`
	Topic     string    `json:"topic"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Messages  int64     `json:"messages"`
	Bytes     int64     `json:"bytes"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Filter controls which sessions List returns.
type Filter struct {
	Peer    string // optional: exact client IP
	Outcome string // optional: closed, failed or rejected
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains one page of sessions.
type ListResult struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository defines the interface for session storage.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores sessions in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new session repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a session. ID and EndedAt are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = "ses-" + uuid.NewString()
	}
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now().UTC()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = s.EndedAt
	}
	if !validOutcome(s.Outcome) {
		return fmt.Errorf("invalid session outcome %q", s.Outcome)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO relay_sessions (id, peer, topic, started_at, ended_at, messages, bytes, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Peer, s.Topic,
		formatTime(s.StartedAt), formatTime(s.EndedAt),
		s.Messages, s.Bytes, s.Outcome,
		nullableString(s.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Peer != "" {
		conditions = append(conditions, "peer = ?")
		args = append(args, filter.Peer)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM relay_sessions %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, peer, topic, started_at, ended_at, messages, bytes, outcome, error FROM relay_sessions %s ORDER BY started_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		var startedAt, endedAt string
		var errText sql.NullString

		if err := rows.Scan(&s.ID, &s.Peer, &s.Topic, &startedAt, &endedAt,
			&s.Messages, &s.Bytes, &s.Outcome, &errText); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if s.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if s.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, err
		}
		if errText.Valid {
			s.Error = errText.String
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return &ListResult{
		Sessions: sessions,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

func validOutcome(o string) bool {
	switch o {
	case OutcomeClosed, OutcomeFailed, OutcomeRejected:
		return true
	default:
		return false
	}
}

// formatTime stores UTC with fixed-width nanoseconds so text order is time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing session timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
