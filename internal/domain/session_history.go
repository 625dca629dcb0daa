package domain

import "time"

type SessionHistory struct {
	ID           int64
	SessionID    int64
	FieldName    string
	OldValue     string
	NewValue     string
	ChangeReason string
	ChangedAt    time.Time
}

// NewSessionHistory creates a history record for a field change
func NewSessionHistory(sessionID int64, c FieldChange, reason string, at time.Time) *SessionHistory {
	return &SessionHistory{
		SessionID:    sessionID,
		FieldName:    c.Field,
		OldValue:     c.OldValue,
		NewValue:     c.NewValue,
		ChangeReason: reason,
		ChangedAt:    at,
	}
}
