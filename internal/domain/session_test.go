package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRunning(rate int64) *TimeSession {
	p := &Project{ID: 7, ClientID: 3, Name: "Site", DefaultHourlyRateCents: rate, IsActive: true}
	s := NewTimeSession(p, "  build  ", true, t0)
	s.ID = 1
	return s
}

func TestSessionStatusNext(t *testing.T) {
	tests := []struct {
		from    SessionStatus
		ev      SessionEvent
		want    SessionStatus
		wantErr bool
	}{
		{SessionRunning, EventPause, SessionPaused, false},
		{SessionRunning, EventStop, SessionStopped, false},
		{SessionRunning, EventResume, "", true},
		{SessionPaused, EventResume, SessionRunning, false},
		{SessionPaused, EventStop, SessionStopped, false},
		{SessionPaused, EventPause, "", true},
		{SessionStopped, EventStop, "", true},
		{SessionStopped, EventResume, "", true},
	}
	for _, tt := range tests {
		got, err := tt.from.Next(tt.ev)
		if tt.wantErr {
			require.Error(t, err, "%s -> %s", tt.from, tt.ev)
			require.True(t, IsBadRequest(err))
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := SessionStopped.Next(EventStop)
	require.ErrorIs(t, err, ErrSessionStopped)

	_, err = SessionRunning.Next(EventResume)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = SessionStatus("lost").Next(EventPause)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStopRoundsUpToQuarterHour(t *testing.T) {
	tests := []struct {
		elapsed  time.Duration
		duration int64
	}{
		{0, 0},
		{time.Second, 900},
		{61 * time.Second, 900},
		{900 * time.Second, 900},
		{901 * time.Second, 1800},
		{2*time.Hour + 59*time.Minute, 3 * 3600},
	}
	for _, tt := range tests {
		s := newRunning(10000)
		require.NoError(t, s.Apply(EventStop, t0.Add(tt.elapsed)))
		require.Equal(t, SessionStopped, s.Status)
		require.Equal(t, tt.duration, *s.DurationSeconds)
		require.Zero(t, *s.DurationSeconds%BillingIncrementSeconds)
		require.GreaterOrEqual(t, *s.DurationSeconds, int64(tt.elapsed/time.Second))
		require.Equal(t, t0.Add(tt.elapsed), *s.EndTime)
	}
}

func TestStopComputesBillableAmount(t *testing.T) {
	s := newRunning(10000)
	require.NoError(t, s.Apply(EventStop, t0.Add(20*time.Minute)))
	require.Equal(t, int64(1800), s.Duration())
	require.Equal(t, int64(5000), s.Amount())
}

func TestPauseDoesNotFreezeClock(t *testing.T) {
	s := newRunning(6000)
	require.NoError(t, s.Apply(EventPause, t0.Add(10*time.Minute)))
	require.Nil(t, s.EndTime)
	require.Nil(t, s.DurationSeconds)
	require.NoError(t, s.Apply(EventResume, t0.Add(50*time.Minute)))
	require.NoError(t, s.Apply(EventStop, t0.Add(60*time.Minute)))
	require.Equal(t, int64(3600), s.Duration())
	require.Equal(t, int64(6000), s.Amount())
}

func TestSessionUpdate(t *testing.T) {
	s := newRunning(10000)
	rate := int64(12000)
	_, err := s.Update(SessionPatch{HourlyRateCents: &rate}, t0)
	require.ErrorIs(t, err, ErrSessionRunning)

	require.NoError(t, s.Apply(EventStop, t0.Add(30*time.Minute)))
	dur := int64(3600)
	changes, err := s.Update(SessionPatch{HourlyRateCents: &rate, DurationSeconds: &dur}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(12000), s.Amount())

	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	require.Equal(t, []string{"hourly_rate_cents", "duration_seconds", "billable_amount_cents"}, fields)

	item := int64(4)
	s.InvoiceItemID = &item
	_, err = s.Update(SessionPatch{HourlyRateCents: &rate}, t0)
	require.ErrorIs(t, err, ErrSessionBilled)
}

func TestSessionUpdateDurationRequiresStopped(t *testing.T) {
	s := newRunning(10000)
	require.NoError(t, s.Apply(EventPause, t0.Add(time.Minute)))
	dur := int64(900)
	_, err := s.Update(SessionPatch{DurationSeconds: &dur}, t0)
	require.ErrorIs(t, err, ErrSessionNotStopped)

	desc := "renamed"
	changes, err := s.Update(SessionPatch{Description: &desc}, t0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "build", changes[0].OldValue)
}

func TestSessionBillable(t *testing.T) {
	s := newRunning(10000)
	require.ErrorIs(t, s.Billable(), ErrSessionNotStopped)
	require.NoError(t, s.Apply(EventStop, t0.Add(time.Minute)))
	require.NoError(t, s.Billable())
	s.IsBillable = false
	require.ErrorIs(t, s.Billable(), ErrSessionNotBillable)
	require.True(t, IsBadRequest(s.Billable()))

	item := int64(4)
	s.IsBillable = true
	s.InvoiceItemID = &item
	require.ErrorIs(t, s.Billable(), ErrSessionBilled)
}

func TestZeroLengthSessionIsNotBillable(t *testing.T) {
	s := newRunning(10000)
	require.NoError(t, s.Apply(EventStop, t0))
	require.Zero(t, s.Duration())
	require.Zero(t, s.Amount())

	err := s.Billable()
	require.ErrorIs(t, err, ErrSessionNotBillable)
	require.True(t, IsBadRequest(err))
	require.Contains(t, err.Error(), "no recorded time")
}
