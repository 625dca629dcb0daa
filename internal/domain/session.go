package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

type SessionEvent string

const (
	EventPause  SessionEvent = "pause"
	EventResume SessionEvent = "resume"
	EventStop   SessionEvent = "stop"
)

var sessionTransitions = map[SessionStatus]map[SessionEvent]SessionStatus{
	SessionRunning: {EventPause: SessionPaused, EventStop: SessionStopped},
	SessionPaused:  {EventResume: SessionRunning, EventStop: SessionStopped},
	SessionStopped: {},
}

// Next returns the status reached by applying ev, or an error when the
// transition is not legal from s.
func (s SessionStatus) Next(ev SessionEvent) (SessionStatus, error) {
	edges, ok := sessionTransitions[s]
	if !ok {
		return "", fmt.Errorf("unknown session status %q: %w", s, ErrInvalidTransition)
	}
	if s == SessionStopped {
		return "", ErrSessionStopped
	}
	next, ok := edges[ev]
	if !ok {
		return "", fmt.Errorf("cannot %s a %s session: %w", ev, s, ErrInvalidTransition)
	}
	return next, nil
}

// Active reports whether the status occupies the single active slot.
func (s SessionStatus) Active() bool {
	return s == SessionRunning || s == SessionPaused
}

func (s SessionStatus) Valid() bool {
	_, ok := sessionTransitions[s]
	return ok
}

type TimeSession struct {
	ID                  int64
	ProjectID           int64
	ClientID            int64 // copied from the project at start
	Description         string
	Notes               string
	StartTime           time.Time
	EndTime             *time.Time // nil until stopped
	DurationSeconds     *int64     // nil until stopped
	Status              SessionStatus
	HourlyRateCents     int64  // snapshot of the project rate at start
	BillableAmountCents *int64 // nil until stopped
	IsBillable          bool
	InvoiceItemID       *int64 // nil = unbilled
	BilledAt            *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewTimeSession starts a running session against a project, snapshotting
// its client and rate.
func NewTimeSession(p *Project, description string, billable bool, now time.Time) *TimeSession {
	return &TimeSession{
		ProjectID:       p.ID,
		ClientID:        p.ClientID,
		Description:     strings.TrimSpace(description),
		StartTime:       now,
		Status:          SessionRunning,
		HourlyRateCents: p.DefaultHourlyRateCents,
		IsBillable:      billable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsBilled returns true if the session is linked to an invoice item
func (s *TimeSession) IsBilled() bool {
	return s.InvoiceItemID != nil
}

// Elapsed returns wall-clock seconds from start to stop, or to now while the
// session is active. Pauses are not subtracted.
func (s *TimeSession) Elapsed(now time.Time) int64 {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	secs := int64(end.Sub(s.StartTime) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// Apply transitions the session by ev. Stop fixes end time, duration and amount.
func (s *TimeSession) Apply(ev SessionEvent, now time.Time) error {
	next, err := s.Status.Next(ev)
	if err != nil {
		return err
	}
	if next == SessionStopped {
		end := now
		duration := RoundUpToIncrement(s.Elapsed(now))
		s.EndTime = &end
		s.DurationSeconds = &duration
		s.recomputeAmount()
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

func (s *TimeSession) recomputeAmount() {
	if s.DurationSeconds == nil {
		s.BillableAmountCents = nil
		return
	}
	amount := ProrateCents(*s.DurationSeconds, s.HourlyRateCents)
	s.BillableAmountCents = &amount
}

// Amount returns the billable amount, zero while the session is unstopped.
func (s *TimeSession) Amount() int64 {
	if s.BillableAmountCents == nil {
		return 0
	}
	return *s.BillableAmountCents
}

// Duration returns the stored duration, zero while the session is unstopped.
func (s *TimeSession) Duration() int64 {
	if s.DurationSeconds == nil {
		return 0
	}
	return *s.DurationSeconds
}

// Editable returns nil when manual edits are permitted.
func (s *TimeSession) Editable() error {
	if s.IsBilled() {
		return ErrSessionBilled
	}
	if s.Status == SessionRunning {
		return ErrSessionRunning
	}
	return nil
}

// Billable returns nil when the session may be placed on an invoice. A
// session with no recorded time cannot be billed.
func (s *TimeSession) Billable() error {
	switch {
	case s.Status != SessionStopped:
		return fmt.Errorf("session %d: %w", s.ID, ErrSessionNotStopped)
	case s.IsBilled():
		return fmt.Errorf("session %d: %w", s.ID, ErrSessionBilled)
	case !s.IsBillable:
		return fmt.Errorf("session %d: %w", s.ID, ErrSessionNotBillable)
	case s.Duration() <= 0:
		return fmt.Errorf("session %d has no recorded time: %w", s.ID, ErrSessionNotBillable)
	}
	return nil
}

// SessionPatch is a manual correction to a non-running, unbilled session.
// Nil fields are left unchanged.
type SessionPatch struct {
	Description     *string
	Notes           *string
	IsBillable      *bool
	HourlyRateCents *int64
	DurationSeconds *int64
}

func (p SessionPatch) Empty() bool {
	return p.Description == nil && p.Notes == nil && p.IsBillable == nil &&
		p.HourlyRateCents == nil && p.DurationSeconds == nil
}

// FieldChange records one field altered by a patch.
type FieldChange struct {
	Field    string
	OldValue string
	NewValue string
}

// Update applies p and returns the fields that actually changed. A rate or
// duration change recomputes the billable amount.
func (s *TimeSession) Update(p SessionPatch, now time.Time) ([]FieldChange, error) {
	if err := s.Editable(); err != nil {
		return nil, err
	}
	if p.HourlyRateCents != nil && *p.HourlyRateCents < 0 {
		return nil, BadRequestf("hourly rate cannot be negative")
	}
	if p.DurationSeconds != nil {
		if *p.DurationSeconds < 0 {
			return nil, BadRequestf("duration cannot be negative")
		}
		if s.Status != SessionStopped {
			return nil, ErrSessionNotStopped
		}
	}

	var changes []FieldChange
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d != s.Description {
			changes = append(changes, FieldChange{"description", s.Description, d})
			s.Description = d
		}
	}
	if p.Notes != nil && *p.Notes != s.Notes {
		changes = append(changes, FieldChange{"notes", s.Notes, *p.Notes})
		s.Notes = *p.Notes
	}
	if p.IsBillable != nil && *p.IsBillable != s.IsBillable {
		changes = append(changes, FieldChange{"is_billable", strconv.FormatBool(s.IsBillable), strconv.FormatBool(*p.IsBillable)})
		s.IsBillable = *p.IsBillable
	}
	recompute := false
	if p.HourlyRateCents != nil && *p.HourlyRateCents != s.HourlyRateCents {
		changes = append(changes, FieldChange{"hourly_rate_cents", itoa(s.HourlyRateCents), itoa(*p.HourlyRateCents)})
		s.HourlyRateCents = *p.HourlyRateCents
		recompute = true
	}
	if p.DurationSeconds != nil && *p.DurationSeconds != s.Duration() {
		changes = append(changes, FieldChange{"duration_seconds", itoa(s.Duration()), itoa(*p.DurationSeconds)})
		d := *p.DurationSeconds
		s.DurationSeconds = &d
		recompute = true
	}
	if recompute && s.Status == SessionStopped {
		old := s.Amount()
		s.recomputeAmount()
		if s.Amount() != old {
			changes = append(changes, FieldChange{"billable_amount_cents", itoa(old), itoa(s.Amount())})
		}
	}
	if len(changes) > 0 {
		s.UpdatedAt = now
	}
	return changes, nil
}

// BulkSessionPatch is the subset of SessionPatch allowed across many sessions.
type BulkSessionPatch struct {
	HourlyRateCents *int64
	IsBillable      *bool
}

func (p BulkSessionPatch) SessionPatch() SessionPatch {
	return SessionPatch{HourlyRateCents: p.HourlyRateCents, IsBillable: p.IsBillable}
}

// Validate returns an error if the session is invalid
func (s *TimeSession) Validate() error {
	if s.ProjectID <= 0 {
		return BadRequestf("project ID is required")
	}
	if s.ClientID <= 0 {
		return BadRequestf("client ID is required")
	}
	if !s.Status.Valid() {
		return BadRequestf("invalid session status %q", s.Status)
	}
	if s.HourlyRateCents < 0 {
		return BadRequestf("hourly rate cannot be negative")
	}
	if s.StartTime.IsZero() {
		return BadRequestf("start time is required")
	}
	if s.EndTime != nil && s.EndTime.Before(s.StartTime) {
		return BadRequestf("end time must be after start time")
	}
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
