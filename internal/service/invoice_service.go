package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

// InvoiceHeader holds the fields shared by both ways of creating an invoice.
// Nil dates and tax rate fall back to the settings defaults.
type InvoiceHeader struct {
	ClientID  int64
	IssueDate *time.Time
	DueDate   *time.Time
	TaxRate   *decimal.Decimal
	Currency  string
	Notes     string
	Terms     string
}

// ItemInput describes a manual invoice item
type ItemInput struct {
	Description    string
	Quantity       decimal.Decimal
	UnitPriceCents int64
}

type ManualInvoiceInput struct {
	InvoiceHeader
	Items []ItemInput
}

type SessionInvoiceInput struct {
	InvoiceHeader
	SessionIDs     []int64
	GroupByProject bool
}

// ItemPatch changes an invoice item. Nil fields are left unchanged.
type ItemPatch struct {
	Description    *string
	Quantity       *decimal.Decimal
	UnitPriceCents *int64
}

// InvoiceService manages invoice creation, editing and lifecycle
type InvoiceService interface {
	// CreateManual creates a draft invoice from free-form items
	CreateManual(ctx context.Context, in ManualInvoiceInput) (*domain.Invoice, error)

	// CreateFromSessions bills stopped, unbilled sessions in one transaction
	CreateFromSessions(ctx context.Context, in SessionInvoiceInput) (*domain.Invoice, error)

	// Get retrieves an invoice with its items and payments
	Get(ctx context.Context, id int64) (*domain.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	List(ctx context.Context, f repository.InvoiceFilter) ([]*domain.Invoice, error)

	AddItem(ctx context.Context, invoiceID int64, in ItemInput) (*domain.Invoice, error)
	UpdateItem(ctx context.Context, invoiceID, itemID int64, patch ItemPatch) (*domain.Invoice, error)
	// DeleteItem removes an item and releases any sessions billed on it
	DeleteItem(ctx context.Context, invoiceID, itemID int64) (*domain.Invoice, error)

	// RecalculateTotals recomputes subtotal, tax and total from the items
	RecalculateTotals(ctx context.Context, id int64) (*domain.Invoice, error)

	// UpdateStatus applies a manual lifecycle change. Paid is reached only by payments.
	UpdateStatus(ctx context.Context, id int64, status domain.InvoiceStatus) (*domain.Invoice, error)

	// MarkOverdue moves sent invoices due before asOf to overdue
	MarkOverdue(ctx context.Context, asOf time.Time) ([]*domain.Invoice, error)

	// Delete removes an unpaid invoice without payments and unbills its sessions
	Delete(ctx context.Context, id int64) error
}

type invoiceService struct {
	store  repository.Transactor
	clock  domain.Clock
	logger *slog.Logger
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(store repository.Transactor, opts ...Option) InvoiceService {
	o := buildOptions(opts)
	return &invoiceService{
		store:  store,
		clock:  o.clock,
		logger: o.logger,
	}
}

// newInvoice validates the header, fills defaults from settings and mints a
// number. It does not persist anything besides the counter.
func (s *invoiceService) newInvoice(ctx context.Context, r *repository.Repositories, h InvoiceHeader) (*domain.Invoice, error) {
	if _, err := r.Clients.GetByID(ctx, h.ClientID); err != nil {
		return nil, err
	}
	settings, err := r.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	inv := &domain.Invoice{
		ClientID:  h.ClientID,
		IssueDate: domain.DateOf(now),
		Status:    domain.InvoiceStatusDraft,
		TaxRate:   settings.DefaultTaxRate,
		Currency:  settings.Currency,
		Notes:     h.Notes,
		Terms:     h.Terms,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if h.IssueDate != nil {
		inv.IssueDate = domain.DateOf(*h.IssueDate)
	}
	inv.DueDate = inv.IssueDate.AddDate(0, 0, settings.PaymentTermsDays)
	if h.DueDate != nil {
		inv.DueDate = domain.DateOf(*h.DueDate)
	}
	if h.TaxRate != nil {
		inv.TaxRate = *h.TaxRate
	}
	if h.Currency != "" {
		inv.Currency = h.Currency
	}
	if err := domain.ValidateTaxRate(inv.TaxRate); err != nil {
		return nil, err
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return nil, domain.BadRequestf("due date must not be before issue date")
	}

	if inv.InvoiceNumber, err = allocateInvoiceNumber(ctx, r.Settings); err != nil {
		return nil, err
	}
	return inv, nil
}

// persist writes the invoice and its items.
func (s *invoiceService) persist(ctx context.Context, r *repository.Repositories, inv *domain.Invoice) error {
	inv.CalculateTotals()
	if err := r.Invoices.Create(ctx, inv); err != nil {
		return err
	}
	for _, item := range inv.Items {
		item.CreatedAt = inv.CreatedAt
		if err := r.Invoices.AddItem(ctx, inv.ID, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *invoiceService) CreateManual(ctx context.Context, in ManualInvoiceInput) (*domain.Invoice, error) {
	if len(in.Items) == 0 {
		return nil, domain.ErrInvoiceNoItems
	}
	items := make([]*domain.InvoiceItem, 0, len(in.Items))
	for i, it := range in.Items {
		item := domain.NewInvoiceItem(it.Description, it.Quantity, it.UnitPriceCents)
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		item.Position = i
		items = append(items, item)
	}

	var inv *domain.Invoice
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if inv, err = s.newInvoice(ctx, r, in.InvoiceHeader); err != nil {
			return err
		}
		inv.Items = items
		return s.persist(ctx, r, inv)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "manual invoice rejected", slog.Int64("client_id", in.ClientID), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "invoice created",
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.InvoiceNumber),
		slog.Int64("amount_cents", inv.TotalCents),
	)
	return inv, nil
}

func (s *invoiceService) CreateFromSessions(ctx context.Context, in SessionInvoiceInput) (*domain.Invoice, error) {
	if len(in.SessionIDs) == 0 {
		return nil, domain.ErrNoSessionsSelected
	}
	if err := checkDistinct(in.SessionIDs); err != nil {
		return nil, err
	}

	var inv *domain.Invoice
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		sessions := make([]*domain.TimeSession, 0, len(in.SessionIDs))
		names := make(map[int64]string)
		for _, id := range in.SessionIDs {
			session, err := r.Sessions.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("time session %d: %w", id, err)
			}
			if err := session.Billable(); err != nil {
				return err
			}
			if session.ClientID != in.ClientID {
				return fmt.Errorf("%w: session %d belongs to client %d, not %d",
					domain.ErrClientMismatch, id, session.ClientID, in.ClientID)
			}
			if _, ok := names[session.ProjectID]; !ok {
				project, err := r.Projects.GetByID(ctx, session.ProjectID)
				if err != nil {
					return err
				}
				names[project.ID] = project.Name
			}
			sessions = append(sessions, session)
		}

		var err error
		if inv, err = s.newInvoice(ctx, r, in.InvoiceHeader); err != nil {
			return err
		}

		built := domain.BuildSessionItems(sessions, names, in.GroupByProject)
		inv.Items = make([]*domain.InvoiceItem, 0, len(built))
		for _, b := range built {
			inv.Items = append(inv.Items, b.Item)
		}
		if err := s.persist(ctx, r, inv); err != nil {
			return err
		}

		for _, b := range built {
			for _, session := range b.Sessions {
				if err := r.Sessions.LinkToItem(ctx, session.ID, b.Item.ID, inv.CreatedAt); err != nil {
					return err
				}
				session.InvoiceItemID = &b.Item.ID
				billedAt := inv.CreatedAt
				session.BilledAt = &billedAt
			}
		}
		return nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "invoice from sessions rejected",
			slog.Int64("client_id", in.ClientID), slog.Int("sessions", len(in.SessionIDs)), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "invoice created from sessions",
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.InvoiceNumber),
		slog.Int("sessions", len(in.SessionIDs)),
		slog.Int("items", len(inv.Items)),
		slog.Int64("amount_cents", inv.TotalCents),
	)
	return inv, nil
}

func (s *invoiceService) Get(ctx context.Context, id int64) (*domain.Invoice, error) {
	r := s.store.Repos()
	inv, err := r.Invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withDetails(ctx, r, inv)
}

func (s *invoiceService) GetByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	r := s.store.Repos()
	inv, err := r.Invoices.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.withDetails(ctx, r, inv)
}

func (s *invoiceService) withDetails(ctx context.Context, r *repository.Repositories, inv *domain.Invoice) (*domain.Invoice, error) {
	var err error
	if inv.Items, err = r.Invoices.GetItems(ctx, inv.ID); err != nil {
		return nil, err
	}
	if inv.Payments, err = r.Payments.ListByInvoice(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) List(ctx context.Context, f repository.InvoiceFilter) ([]*domain.Invoice, error) {
	return s.store.Repos().Invoices.List(ctx, f)
}

// editItems runs fn against an editable invoice, then recomputes totals and
// reconciles against payments already received.
func (s *invoiceService) editItems(ctx context.Context, invoiceID int64, action string, fn func(r *repository.Repositories, inv *domain.Invoice) error) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		inv, err = r.Invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.CanEditItems(); err != nil {
			return err
		}
		if inv.Items, err = r.Invoices.GetItems(ctx, invoiceID); err != nil {
			return err
		}
		if err := fn(r, inv); err != nil {
			return err
		}
		if inv.Items, err = r.Invoices.GetItems(ctx, invoiceID); err != nil {
			return err
		}
		inv.CalculateTotals()

		paid, err := r.Payments.TotalPaid(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.TotalCents < paid {
			return fmt.Errorf("%w: %s already paid", domain.ErrTotalBelowPaid, domain.FormatCents(paid))
		}
		if paid > 0 {
			setStatus(inv, domain.ReconcileStatus(inv.Status, paid, inv.TotalCents), s.clock.Now())
		}
		inv.UpdatedAt = s.clock.Now()
		return r.Invoices.Update(ctx, inv)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "invoice item "+action+" rejected", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
		return nil, err
	}
	s.logger.InfoContext(ctx, "invoice item "+action,
		slog.Int64("invoice_id", invoiceID),
		slog.Int64("amount_cents", inv.TotalCents),
		slog.String("status", string(inv.Status)),
	)
	return inv, nil
}

func (s *invoiceService) AddItem(ctx context.Context, invoiceID int64, in ItemInput) (*domain.Invoice, error) {
	item := domain.NewInvoiceItem(in.Description, in.Quantity, in.UnitPriceCents)
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return s.editItems(ctx, invoiceID, "added", func(r *repository.Repositories, inv *domain.Invoice) error {
		item.Position = len(inv.Items)
		item.CreatedAt = s.clock.Now()
		return r.Invoices.AddItem(ctx, invoiceID, item)
	})
}

func (s *invoiceService) UpdateItem(ctx context.Context, invoiceID, itemID int64, patch ItemPatch) (*domain.Invoice, error) {
	if patch.Description == nil && patch.Quantity == nil && patch.UnitPriceCents == nil {
		return nil, domain.BadRequestf("nothing to update")
	}
	return s.editItems(ctx, invoiceID, "updated", func(r *repository.Repositories, inv *domain.Invoice) error {
		item, err := r.Invoices.GetItem(ctx, invoiceID, itemID)
		if err != nil {
			return err
		}
		if item.FromSessions && (patch.Quantity != nil || patch.UnitPriceCents != nil) {
			return fmt.Errorf("%w: only the description can change", domain.ErrSessionDerivedItem)
		}
		if patch.Description != nil {
			item.Description = *patch.Description
		}
		if patch.Quantity != nil {
			item.Quantity = *patch.Quantity
		}
		if patch.UnitPriceCents != nil {
			item.UnitPriceCents = *patch.UnitPriceCents
		}
		if err := item.Validate(); err != nil {
			return err
		}
		if !item.FromSessions {
			item.TotalCents = domain.LineTotalCents(item.Quantity, item.UnitPriceCents)
		}
		return r.Invoices.UpdateItem(ctx, item)
	})
}

func (s *invoiceService) DeleteItem(ctx context.Context, invoiceID, itemID int64) (*domain.Invoice, error) {
	return s.editItems(ctx, invoiceID, "deleted", func(r *repository.Repositories, inv *domain.Invoice) error {
		if _, err := r.Invoices.GetItem(ctx, invoiceID, itemID); err != nil {
			return err
		}
		if len(inv.Items) == 1 {
			return fmt.Errorf("%w: delete the invoice instead", domain.ErrInvoiceNoItems)
		}
		if _, err := r.Sessions.UnlinkByItem(ctx, itemID, s.clock.Now()); err != nil {
			return err
		}
		return r.Invoices.DeleteItem(ctx, invoiceID, itemID)
	})
}

func (s *invoiceService) RecalculateTotals(ctx context.Context, id int64) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if inv, err = r.Invoices.GetByID(ctx, id); err != nil {
			return err
		}
		if inv.Items, err = r.Invoices.GetItems(ctx, id); err != nil {
			return err
		}
		before := [3]int64{inv.SubtotalCents, inv.TaxAmountCents, inv.TotalCents}
		inv.CalculateTotals()
		if before == [3]int64{inv.SubtotalCents, inv.TaxAmountCents, inv.TotalCents} {
			return nil
		}
		s.logger.WarnContext(ctx, "invoice totals drifted",
			slog.Int64("invoice_id", id), slog.Int64("stored_cents", before[2]), slog.Int64("amount_cents", inv.TotalCents))
		inv.UpdatedAt = s.clock.Now()
		return r.Invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) UpdateStatus(ctx context.Context, id int64, status domain.InvoiceStatus) (*domain.Invoice, error) {
	var inv *domain.Invoice
	var from domain.InvoiceStatus
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if inv, err = r.Invoices.GetByID(ctx, id); err != nil {
			return err
		}
		from = inv.Status
		if err := inv.Status.CanTransitionTo(status); err != nil {
			return err
		}
		if status == domain.InvoiceStatusCancelled {
			n, err := r.Payments.Count(ctx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: cannot cancel", domain.ErrInvoiceHasPayments)
			}
		}
		setStatus(inv, status, s.clock.Now())
		return r.Invoices.Update(ctx, inv)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "invoice status change rejected",
			slog.Int64("invoice_id", id), slog.String("to", string(status)), slog.Any("error", err))
		return nil, err
	}
	s.logger.InfoContext(ctx, "invoice status changed",
		slog.Int64("invoice_id", id), slog.String("from", string(from)), slog.String("to", string(status)))
	return inv, nil
}

func (s *invoiceService) MarkOverdue(ctx context.Context, asOf time.Time) ([]*domain.Invoice, error) {
	var changed []*domain.Invoice
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		sent := domain.InvoiceStatusSent
		invoices, err := r.Invoices.List(ctx, repository.InvoiceFilter{Status: &sent})
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			if !inv.IsOverdue(asOf) {
				continue
			}
			setStatus(inv, domain.InvoiceStatusOverdue, s.clock.Now())
			if err := r.Invoices.Update(ctx, inv); err != nil {
				return err
			}
			changed = append(changed, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		s.logger.InfoContext(ctx, "invoices marked overdue", slog.Int("count", len(changed)))
	}
	return changed, nil
}

func (s *invoiceService) Delete(ctx context.Context, id int64) error {
	var unlinked int64
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		inv, err := r.Invoices.GetByID(ctx, id)
		if err != nil {
			return err
		}
		n, err := r.Payments.Count(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.CanDelete(n); err != nil {
			return err
		}
		if unlinked, err = r.Sessions.UnlinkByInvoice(ctx, id, s.clock.Now()); err != nil {
			return err
		}
		return r.Invoices.Delete(ctx, id)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "invoice delete rejected", slog.Int64("invoice_id", id), slog.Any("error", err))
		return err
	}
	s.logger.InfoContext(ctx, "invoice deleted", slog.Int64("invoice_id", id), slog.Int64("sessions_unlinked", unlinked))
	return nil
}

// setStatus changes status and keeps PaidDate in step with it.
func setStatus(inv *domain.Invoice, status domain.InvoiceStatus, now time.Time) {
	if inv.Status == status {
		return
	}
	inv.Status = status
	if status == domain.InvoiceStatusPaid {
		paid := domain.DateOf(now)
		inv.PaidDate = &paid
	} else {
		inv.PaidDate = nil
	}
	inv.UpdatedAt = now
}
