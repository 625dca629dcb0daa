package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// SessionRepo is a SQLite implementation of SessionRepository
type SessionRepo struct {
	db db.Querier
}

// NewSessionRepo creates a new SessionRepo
func NewSessionRepo(q db.Querier) *SessionRepo {
	return &SessionRepo{db: q}
}

const sessionColumns = `id, project_id, client_id, description, notes, start_time, end_time,
	duration_seconds, status, hourly_rate_cents, billable_amount_cents, is_billable,
	invoice_item_id, billed_at, created_at, updated_at`

// InsertIfNoneActive inserts a new session only when no other session is
// running or paused. The NOT EXISTS guard and the insert are one statement;
// the partial unique index on active rows catches anything that slips past.
func (r *SessionRepo) InsertIfNoneActive(ctx context.Context, s *domain.TimeSession) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO time_sessions (
			project_id, client_id, description, notes, start_time, status,
			hourly_rate_cents, is_billable, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM time_sessions WHERE status <> 'stopped')
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ProjectID,
		s.ClientID,
		s.Description,
		s.Notes,
		formatTime(s.StartTime),
		s.Status,
		s.HourlyRateCents,
		s.IsBillable,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrSessionActive
		}
		return fmt.Errorf("failed to create time session: %w", err)
	}
	if err := expectOne(result, domain.ErrSessionActive); err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get time session ID: %w", err)
	}
	s.ID = id
	return nil
}

// GetByID retrieves a time session by ID
func (r *SessionRepo) GetByID(ctx context.Context, id int64) (*domain.TimeSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM time_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err, domain.ErrSessionNotFound, "get time session")
	}
	return s, nil
}

// GetActive returns the running or paused session, or nil if there is none
func (r *SessionRepo) GetActive(ctx context.Context) (*domain.TimeSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM time_sessions WHERE status <> 'stopped' LIMIT 1`)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active time session: %w", err)
	}
	return s, nil
}

// CompareAndSwapStatus changes status only if the session is still in from
func (r *SessionRepo) CompareAndSwapStatus(ctx context.Context, id int64, from, to domain.SessionStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE time_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, formatTime(at), id, from,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.ErrSessionActive
		}
		return fmt.Errorf("failed to update time session status: %w", err)
	}
	return expectOne(result, domain.ErrSessionChanged)
}

// SaveStop persists end time, duration and amount of a stopped session
func (r *SessionRepo) SaveStop(ctx context.Context, s *domain.TimeSession, from domain.SessionStatus) error {
	if s.Status != domain.SessionStopped {
		return domain.ErrSessionNotStopped
	}
	query := `
		UPDATE time_sessions
		SET status = ?, end_time = ?, duration_seconds = ?, billable_amount_cents = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Status,
		nullTime(s.EndTime),
		nullInt(s.DurationSeconds),
		nullInt(s.BillableAmountCents),
		formatTime(s.UpdatedAt),
		s.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to stop time session: %w", err)
	}
	return expectOne(result, domain.ErrSessionChanged)
}

// Update writes the manually editable fields. Billed and running sessions are
// never touched.
func (r *SessionRepo) Update(ctx context.Context, s *domain.TimeSession) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE time_sessions
		SET description = ?, notes = ?, is_billable = ?, hourly_rate_cents = ?,
		    duration_seconds = ?, billable_amount_cents = ?, updated_at = ?
		WHERE id = ? AND invoice_item_id IS NULL AND status <> 'running'
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Description,
		s.Notes,
		s.IsBillable,
		s.HourlyRateCents,
		nullInt(s.DurationSeconds),
		nullInt(s.BillableAmountCents),
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update time session: %w", err)
	}
	return expectOne(result, domain.ErrSessionChanged)
}

// Delete removes an unbilled session along with its history
func (r *SessionRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_history WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete time session history: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM time_sessions WHERE id = ? AND invoice_item_id IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete time session: %w", err)
	}
	return expectOne(result, domain.ErrSessionNotFound)
}

// List retrieves time sessions with optional filters, newest first
func (r *SessionRepo) List(ctx context.Context, f SessionFilter) ([]*domain.TimeSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM time_sessions WHERE 1 = 1`
	args := make([]any, 0)

	if f.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if f.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *f.ClientID)
	}
	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.Billed != nil {
		if *f.Billed {
			query += " AND invoice_item_id IS NOT NULL"
		} else {
			query += " AND invoice_item_id IS NULL"
		}
	}
	if f.Billable != nil {
		query += " AND is_billable = ?"
		args = append(args, *f.Billable)
	}
	if f.InvoiceItemID != nil {
		query += " AND invoice_item_id = ?"
		args = append(args, *f.InvoiceItemID)
	}
	if f.From != nil {
		query += " AND start_time >= ?"
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += " AND start_time < ?"
		args = append(args, formatTime(*f.To))
	}
	query += " ORDER BY start_time DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.TimeSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time sessions: %w", err)
	}
	return sessions, nil
}

// LinkToItem bills a session. The guard makes a concurrent biller lose.
func (r *SessionRepo) LinkToItem(ctx context.Context, sessionID, itemID int64, at time.Time) error {
	query := `
		UPDATE time_sessions
		SET invoice_item_id = ?, billed_at = ?, updated_at = ?
		WHERE id = ? AND invoice_item_id IS NULL AND status = 'stopped' AND is_billable = 1
	`
	ts := formatTime(at)
	result, err := r.db.ExecContext(ctx, query, itemID, ts, ts, sessionID)
	if err != nil {
		return fmt.Errorf("failed to link time session %d: %w", sessionID, err)
	}
	if err := expectOne(result, domain.ErrSessionBilled); err != nil {
		return fmt.Errorf("time session %d: %w", sessionID, err)
	}
	return nil
}

// UnlinkByInvoice releases every session billed on any item of the invoice
func (r *SessionRepo) UnlinkByInvoice(ctx context.Context, invoiceID int64, at time.Time) (int64, error) {
	query := `
		UPDATE time_sessions
		SET invoice_item_id = NULL, billed_at = NULL, updated_at = ?
		WHERE invoice_item_id IN (SELECT id FROM invoice_items WHERE invoice_id = ?)
	`
	result, err := r.db.ExecContext(ctx, query, formatTime(at), invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink time sessions: %w", err)
	}
	return result.RowsAffected()
}

// UnlinkByItem releases the sessions billed on one item
func (r *SessionRepo) UnlinkByItem(ctx context.Context, itemID int64, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE time_sessions SET invoice_item_id = NULL, billed_at = NULL, updated_at = ? WHERE invoice_item_id = ?`,
		formatTime(at), itemID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink time sessions: %w", err)
	}
	return result.RowsAffected()
}

// AddHistory records one field change
func (r *SessionRepo) AddHistory(ctx context.Context, h *domain.SessionHistory) error {
	query := `
		INSERT INTO session_history (session_id, field_name, old_value, new_value, change_reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		h.SessionID, h.FieldName, h.OldValue, h.NewValue, h.ChangeReason, formatTime(h.ChangedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get history ID: %w", err)
	}
	h.ID = id
	return nil
}

// History retrieves the audit trail for a time session
func (r *SessionRepo) History(ctx context.Context, sessionID int64) ([]*domain.SessionHistory, error) {
	query := `
		SELECT id, session_id, field_name, old_value, new_value, change_reason, changed_at
		FROM session_history
		WHERE session_id = ?
		ORDER BY changed_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	defer rows.Close()

	history := make([]*domain.SessionHistory, 0)
	for rows.Next() {
		h := &domain.SessionHistory{}
		var oldValue, newValue, reason sql.NullString
		var changedAt string
		if err := rows.Scan(&h.ID, &h.SessionID, &h.FieldName, &oldValue, &newValue, &reason, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.OldValue, h.NewValue, h.ChangeReason = oldValue.String, newValue.String, reason.String
		if h.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("failed to parse changed_at: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

func scanSession(sc scanner) (*domain.TimeSession, error) {
	s := &domain.TimeSession{}
	var startTime, createdAt, updatedAt string
	var endTime, billedAt sql.NullString
	var duration, amount, itemID sql.NullInt64

	err := sc.Scan(
		&s.ID,
		&s.ProjectID,
		&s.ClientID,
		&s.Description,
		&s.Notes,
		&startTime,
		&endTime,
		&duration,
		&s.Status,
		&s.HourlyRateCents,
		&amount,
		&s.IsBillable,
		&itemID,
		&billedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if s.EndTime, err = parseNullTime(endTime); err != nil {
		return nil, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if s.BilledAt, err = parseNullTime(billedAt); err != nil {
		return nil, fmt.Errorf("failed to parse billed_at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	s.DurationSeconds = fromNullInt(duration)
	s.BillableAmountCents = fromNullInt(amount)
	s.InvoiceItemID = fromNullInt(itemID)
	return s, nil
}
