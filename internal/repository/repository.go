package repository

import (
	"context"
	"time"

	"github.com/andy/tally/internal/domain"
)

// ClientRepository manages client persistence
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	GetByName(ctx context.Context, name string) (*domain.Client, error)
	List(ctx context.Context, includeArchived bool) ([]*domain.Client, error)
}

// ProjectRepository manages projects, the rate templates sessions are started from
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	List(ctx context.Context, clientID *int64, includeArchived bool) ([]*domain.Project, error)
}

// SessionFilter narrows SessionRepository.List. Nil fields do not filter.
type SessionFilter struct {
	ProjectID     *int64
	ClientID      *int64
	Status        *domain.SessionStatus
	Billed        *bool
	Billable      *bool
	InvoiceItemID *int64
	From          *time.Time // start_time >= From
	To            *time.Time // start_time < To
}

// SessionRepository manages time sessions and their audit trail
type SessionRepository interface {
	// InsertIfNoneActive inserts s unless a running or paused session exists,
	// in which case it returns domain.ErrSessionActive.
	InsertIfNoneActive(ctx context.Context, s *domain.TimeSession) error
	GetByID(ctx context.Context, id int64) (*domain.TimeSession, error)
	GetActive(ctx context.Context) (*domain.TimeSession, error) // nil if none
	// CompareAndSwapStatus moves a session from one status to another,
	// returning domain.ErrSessionChanged when its status is no longer from.
	CompareAndSwapStatus(ctx context.Context, id int64, from, to domain.SessionStatus, at time.Time) error
	// SaveStop persists a stop transition guarded on the previous status.
	SaveStop(ctx context.Context, s *domain.TimeSession, from domain.SessionStatus) error
	// Update writes the editable fields of an unbilled, non-running session.
	Update(ctx context.Context, s *domain.TimeSession) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f SessionFilter) ([]*domain.TimeSession, error)
	// LinkToItem bills a stopped, unbilled session. A session that was billed or
	// changed in the meantime yields domain.ErrSessionBilled.
	LinkToItem(ctx context.Context, sessionID, itemID int64, at time.Time) error
	UnlinkByInvoice(ctx context.Context, invoiceID int64, at time.Time) (int64, error)
	UnlinkByItem(ctx context.Context, itemID int64, at time.Time) (int64, error)
	AddHistory(ctx context.Context, h *domain.SessionHistory) error
	History(ctx context.Context, sessionID int64) ([]*domain.SessionHistory, error)
}

// InvoiceFilter narrows InvoiceRepository.List. Nil fields do not filter.
type InvoiceFilter struct {
	ClientID *int64
	Status   *domain.InvoiceStatus
}

// InvoiceRepository manages invoice and item persistence
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id int64) (*domain.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	List(ctx context.Context, f InvoiceFilter) ([]*domain.Invoice, error)
	// Update writes header fields, totals and status.
	Update(ctx context.Context, invoice *domain.Invoice) error
	Delete(ctx context.Context, id int64) error
	AddItem(ctx context.Context, invoiceID int64, item *domain.InvoiceItem) error
	UpdateItem(ctx context.Context, item *domain.InvoiceItem) error
	DeleteItem(ctx context.Context, invoiceID, itemID int64) error
	GetItem(ctx context.Context, invoiceID, itemID int64) (*domain.InvoiceItem, error)
	GetItems(ctx context.Context, invoiceID int64) ([]*domain.InvoiceItem, error)
}

// PaymentRepository manages payments recorded against invoices
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
	Delete(ctx context.Context, id int64) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.Payment, error)
	TotalPaid(ctx context.Context, invoiceID int64) (int64, error)
	Count(ctx context.Context, invoiceID int64) (int, error)
}

// SettingsRepository manages the singleton settings row
type SettingsRepository interface {
	// Ensure creates the row from defaults when it does not exist yet.
	Ensure(ctx context.Context, defaults domain.Settings) error
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, s *domain.Settings) error
	// AllocateInvoiceNumber atomically increments the counter and returns
	// the prefix and the pre-increment value.
	AllocateInvoiceNumber(ctx context.Context) (string, int64, error)
}
