package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

// SessionService manages the time session state machine
type SessionService interface {
	// Start begins a running session against an active project. Fails with a
	// conflict if any session is running or paused.
	Start(ctx context.Context, projectID int64, description string, billable bool) (*domain.TimeSession, error)

	// Pause pauses a running session
	Pause(ctx context.Context, id int64) (*domain.TimeSession, error)

	// Resume resumes a paused session
	Resume(ctx context.Context, id int64) (*domain.TimeSession, error)

	// Stop fixes duration (rounded up to 15 minutes) and billable amount
	Stop(ctx context.Context, id int64) (*domain.TimeSession, error)

	// Update applies a manual correction and records it in the session history
	Update(ctx context.Context, id int64, patch domain.SessionPatch, reason string) (*domain.TimeSession, error)

	// Delete removes an unbilled session, stopping it first if active
	Delete(ctx context.Context, id int64) error

	// BulkUpdate applies a rate or billable change to every session or to none
	BulkUpdate(ctx context.Context, ids []int64, patch domain.BulkSessionPatch, reason string) ([]*domain.TimeSession, error)

	Get(ctx context.Context, id int64) (*domain.TimeSession, error)

	// Active returns the running or paused session with server-computed
	// elapsed time, or nil when idle
	Active(ctx context.Context) (*ActiveSession, error)

	List(ctx context.Context, f repository.SessionFilter) ([]*domain.TimeSession, error)

	// Unbilled lists stopped, billable sessions with recorded time not yet on an invoice
	Unbilled(ctx context.Context, clientID int64) ([]*domain.TimeSession, error)

	History(ctx context.Context, id int64) ([]*domain.SessionHistory, error)
}

// ActiveSession is a snapshot of the active session as of AsOf.
type ActiveSession struct {
	Session                  *domain.TimeSession
	Project                  *domain.Project
	AsOf                     time.Time
	ElapsedSeconds           int64
	ProjectedDurationSeconds int64 // duration if stopped at AsOf
	ProjectedAmountCents     int64
}

type sessionService struct {
	store  repository.Transactor
	clock  domain.Clock
	logger *slog.Logger
}

// NewSessionService creates a new session service
func NewSessionService(store repository.Transactor, opts ...Option) SessionService {
	o := buildOptions(opts)
	return &sessionService{
		store:  store,
		clock:  o.clock,
		logger: o.logger,
	}
}

func (s *sessionService) Start(ctx context.Context, projectID int64, description string, billable bool) (*domain.TimeSession, error) {
	var session *domain.TimeSession
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		project, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if !project.Trackable() {
			return domain.ErrProjectInactive
		}

		active, err := r.Sessions.GetActive(ctx)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w (session %d is %s)", domain.ErrSessionActive, active.ID, active.Status)
		}

		session = domain.NewTimeSession(project, description, billable, s.clock.Now())
		return r.Sessions.InsertIfNoneActive(ctx, session)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "session start rejected", slog.Int64("project_id", projectID), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "session started",
		slog.Int64("session_id", session.ID),
		slog.Int64("project_id", projectID),
		slog.Int64("hourly_rate_cents", session.HourlyRateCents),
	)
	return session, nil
}

func (s *sessionService) Pause(ctx context.Context, id int64) (*domain.TimeSession, error) {
	return s.transition(ctx, id, domain.EventPause)
}

func (s *sessionService) Resume(ctx context.Context, id int64) (*domain.TimeSession, error) {
	return s.transition(ctx, id, domain.EventResume)
}

func (s *sessionService) Stop(ctx context.Context, id int64) (*domain.TimeSession, error) {
	return s.transition(ctx, id, domain.EventStop)
}

// transition applies ev inside one transaction, guarding the write on the
// status that was read.
func (s *sessionService) transition(ctx context.Context, id int64, ev domain.SessionEvent) (*domain.TimeSession, error) {
	var session *domain.TimeSession
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		session, err = r.Sessions.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if ev == domain.EventResume {
			active, err := r.Sessions.GetActive(ctx)
			if err != nil {
				return err
			}
			if active != nil && active.ID != id && active.Status == domain.SessionRunning {
				return fmt.Errorf("%w (session %d is running)", domain.ErrSessionActive, active.ID)
			}
		}

		from := session.Status
		if err := session.Apply(ev, s.clock.Now()); err != nil {
			return err
		}
		return s.saveTransition(ctx, r, session, from)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "session transition rejected",
			slog.Int64("session_id", id), slog.String("event", string(ev)), slog.Any("error", err))
		return nil, err
	}

	attrs := []any{slog.Int64("session_id", id), slog.String("status", string(session.Status))}
	if session.Status == domain.SessionStopped {
		attrs = append(attrs,
			slog.Int64("duration_seconds", session.Duration()),
			slog.Int64("amount_cents", session.Amount()),
		)
	}
	s.logger.InfoContext(ctx, "session "+string(ev), attrs...)
	return session, nil
}

func (s *sessionService) saveTransition(ctx context.Context, r *repository.Repositories, session *domain.TimeSession, from domain.SessionStatus) error {
	if session.Status == domain.SessionStopped {
		return r.Sessions.SaveStop(ctx, session, from)
	}
	return r.Sessions.CompareAndSwapStatus(ctx, session.ID, from, session.Status, session.UpdatedAt)
}

func (s *sessionService) Update(ctx context.Context, id int64, patch domain.SessionPatch, reason string) (*domain.TimeSession, error) {
	if patch.Empty() {
		return nil, domain.BadRequestf("nothing to update")
	}

	var session *domain.TimeSession
	var changes []domain.FieldChange
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		session, err = r.Sessions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		changes, err = s.applyPatch(ctx, r, session, patch, reason)
		return err
	})
	if err != nil {
		s.logger.DebugContext(ctx, "session update rejected", slog.Int64("session_id", id), slog.Any("error", err))
		return nil, err
	}

	if len(changes) > 0 {
		s.logger.InfoContext(ctx, "session updated",
			slog.Int64("session_id", id),
			slog.Int("fields", len(changes)),
			slog.Int64("amount_cents", session.Amount()),
		)
	}
	return session, nil
}

// applyPatch updates one session and writes a history row per changed field.
func (s *sessionService) applyPatch(ctx context.Context, r *repository.Repositories, session *domain.TimeSession, patch domain.SessionPatch, reason string) ([]domain.FieldChange, error) {
	now := s.clock.Now()
	changes, err := session.Update(patch, now)
	if err != nil {
		return nil, fmt.Errorf("time session %d: %w", session.ID, err)
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := r.Sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	for _, c := range changes {
		if err := r.Sessions.AddHistory(ctx, domain.NewSessionHistory(session.ID, c, reason, now)); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func (s *sessionService) Delete(ctx context.Context, id int64) error {
	var autoStopped bool
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		session, err := r.Sessions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if session.IsBilled() {
			return domain.ErrSessionBilled
		}
		if session.Status.Active() {
			from := session.Status
			if err := session.Apply(domain.EventStop, s.clock.Now()); err != nil {
				return err
			}
			if err := r.Sessions.SaveStop(ctx, session, from); err != nil {
				return err
			}
			autoStopped = true
		}
		return r.Sessions.Delete(ctx, id)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "session delete rejected", slog.Int64("session_id", id), slog.Any("error", err))
		return err
	}
	s.logger.InfoContext(ctx, "session deleted", slog.Int64("session_id", id), slog.Bool("auto_stopped", autoStopped))
	return nil
}

func (s *sessionService) BulkUpdate(ctx context.Context, ids []int64, patch domain.BulkSessionPatch, reason string) ([]*domain.TimeSession, error) {
	if len(ids) == 0 {
		return nil, domain.ErrNoSessionsSelected
	}
	sp := patch.SessionPatch()
	if sp.Empty() {
		return nil, domain.BadRequestf("nothing to update")
	}
	if err := checkDistinct(ids); err != nil {
		return nil, err
	}

	sessions := make([]*domain.TimeSession, 0, len(ids))
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		// validate the whole batch before writing anything
		for _, id := range ids {
			session, err := r.Sessions.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("time session %d: %w", id, err)
			}
			if err := session.Editable(); err != nil {
				return fmt.Errorf("time session %d: %w", id, err)
			}
			sessions = append(sessions, session)
		}
		for _, session := range sessions {
			if _, err := s.applyPatch(ctx, r, session, sp, reason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "bulk session update rejected", slog.Int("count", len(ids)), slog.Any("error", err))
		return nil, err
	}
	s.logger.InfoContext(ctx, "sessions bulk updated", slog.Int("count", len(sessions)))
	return sessions, nil
}

func (s *sessionService) Get(ctx context.Context, id int64) (*domain.TimeSession, error) {
	return s.store.Repos().Sessions.GetByID(ctx, id)
}

func (s *sessionService) Active(ctx context.Context) (*ActiveSession, error) {
	r := s.store.Repos()
	session, err := r.Sessions.GetActive(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	project, err := r.Projects.GetByID(ctx, session.ProjectID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	elapsed := session.Elapsed(now)
	projected := domain.RoundUpToIncrement(elapsed)
	return &ActiveSession{
		Session:                  session,
		Project:                  project,
		AsOf:                     now,
		ElapsedSeconds:           elapsed,
		ProjectedDurationSeconds: projected,
		ProjectedAmountCents:     domain.ProrateCents(projected, session.HourlyRateCents),
	}, nil
}

func (s *sessionService) List(ctx context.Context, f repository.SessionFilter) ([]*domain.TimeSession, error) {
	return s.store.Repos().Sessions.List(ctx, f)
}

func (s *sessionService) Unbilled(ctx context.Context, clientID int64) ([]*domain.TimeSession, error) {
	stopped := domain.SessionStopped
	billed, billable := false, true
	sessions, err := s.store.Repos().Sessions.List(ctx, repository.SessionFilter{
		ClientID: &clientID,
		Status:   &stopped,
		Billed:   &billed,
		Billable: &billable,
	})
	if err != nil {
		return nil, err
	}
	// zero-length sessions match the filter but cannot be invoiced
	out := sessions[:0]
	for _, session := range sessions {
		if session.Billable() == nil {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *sessionService) History(ctx context.Context, id int64) ([]*domain.SessionHistory, error) {
	r := s.store.Repos()
	if _, err := r.Sessions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return r.Sessions.History(ctx, id)
}

// checkDistinct rejects a request listing the same session twice.
func checkDistinct(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("time session %d: %w", id, domain.ErrDuplicateSessionID)
		}
		seen[id] = struct{}{}
	}
	return nil
}
