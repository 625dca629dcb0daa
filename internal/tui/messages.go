package tui

import (
	"time"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/service"
)

// snapshotMsg carries a fresh read of the active session; active is nil when idle
type snapshotMsg struct {
	active *service.ActiveSession
	err    error
}

// tickMsg advances the local projection once a second
type tickMsg time.Time

// actionMsg reports the result of a pause, resume or stop
type actionMsg struct {
	verb    string
	session *domain.TimeSession
	err     error
}
