package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

// PaymentInput records money received against an invoice. A nil date means
// today; an empty reference gets a generated one.
type PaymentInput struct {
	InvoiceID   int64
	AmountCents int64
	PaymentDate *time.Time
	Method      domain.PaymentMethod
	Reference   string
	Notes       string
}

// PaymentService records payments and keeps invoice status consistent with them
type PaymentService interface {
	// Create records a payment and reconciles the invoice in the same transaction
	Create(ctx context.Context, in PaymentInput) (*domain.Payment, error)

	// Update changes a payment; an amount change is re-checked against the total
	Update(ctx context.Context, id int64, patch domain.PaymentPatch) (*domain.Payment, error)

	// Delete removes a payment and reverts a paid invoice that is no longer covered
	Delete(ctx context.Context, id int64) error

	Get(ctx context.Context, id int64) (*domain.Payment, error)
	List(ctx context.Context, invoiceID int64) ([]*domain.Payment, error)
	Balance(ctx context.Context, invoiceID int64) (*domain.Balance, error)

	// Reconcile recomputes an invoice's status from its recorded payments
	Reconcile(ctx context.Context, invoiceID int64) (*domain.Balance, error)
}

type paymentService struct {
	store  repository.Transactor
	clock  domain.Clock
	logger *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store repository.Transactor, opts ...Option) PaymentService {
	o := buildOptions(opts)
	return &paymentService{
		store:  store,
		clock:  o.clock,
		logger: o.logger,
	}
}

func (s *paymentService) Create(ctx context.Context, in PaymentInput) (*domain.Payment, error) {
	if in.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	method, err := domain.ParsePaymentMethod(string(in.Method))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &domain.Payment{
		InvoiceID:   in.InvoiceID,
		AmountCents: in.AmountCents,
		PaymentDate: domain.DateOf(now),
		Method:      method,
		Reference:   in.Reference,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.PaymentDate != nil {
		p.PaymentDate = domain.DateOf(*in.PaymentDate)
	}
	if p.Reference == "" {
		p.Reference = uuid.NewString()
	}

	var inv *domain.Invoice
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if inv, err = r.Invoices.GetByID(ctx, in.InvoiceID); err != nil {
			return err
		}
		if inv.Status == domain.InvoiceStatusCancelled {
			return domain.ErrInvoiceCancelled
		}
		paid, err := r.Payments.TotalPaid(ctx, inv.ID)
		if err != nil {
			return err
		}
		newPaid := paid + p.AmountCents
		if err := domain.CheckOverpayment(newPaid, paid, inv.TotalCents); err != nil {
			return err
		}
		if err := r.Payments.Create(ctx, p); err != nil {
			return err
		}
		return s.apply(ctx, r, inv, domain.ReconcileStatus(inv.Status, newPaid, inv.TotalCents))
	})
	if err != nil {
		s.logger.DebugContext(ctx, "payment rejected",
			slog.Int64("invoice_id", in.InvoiceID), slog.Int64("amount_cents", in.AmountCents), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment recorded",
		slog.Int64("payment_id", p.ID),
		slog.Int64("invoice_id", inv.ID),
		slog.Int64("amount_cents", p.AmountCents),
		slog.String("status", string(inv.Status)),
	)
	return p, nil
}

func (s *paymentService) Update(ctx context.Context, id int64, patch domain.PaymentPatch) (*domain.Payment, error) {
	if patch.Method != nil {
		m, err := domain.ParsePaymentMethod(string(*patch.Method))
		if err != nil {
			return nil, err
		}
		patch.Method = &m
	}

	var p *domain.Payment
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if p, err = r.Payments.GetByID(ctx, id); err != nil {
			return err
		}
		inv, err := r.Invoices.GetByID(ctx, p.InvoiceID)
		if err != nil {
			return err
		}

		oldAmount := p.AmountCents
		patch.Apply(p)
		if p.AmountCents <= 0 {
			return domain.ErrInvalidAmount
		}
		p.UpdatedAt = s.clock.Now()

		paid, err := r.Payments.TotalPaid(ctx, inv.ID)
		if err != nil {
			return err
		}
		others := paid - oldAmount
		newPaid := others + p.AmountCents
		if err := domain.CheckOverpayment(newPaid, others, inv.TotalCents); err != nil {
			return err
		}
		if err := r.Payments.Update(ctx, p); err != nil {
			return err
		}

		status := domain.ReconcileStatus(inv.Status, newPaid, inv.TotalCents)
		if newPaid < paid {
			count, err := r.Payments.Count(ctx, inv.ID)
			if err != nil {
				return err
			}
			status = domain.StatusAfterDecrease(inv.Status, newPaid, inv.TotalCents, count)
		}
		return s.apply(ctx, r, inv, status)
	})
	if err != nil {
		s.logger.DebugContext(ctx, "payment update rejected", slog.Int64("payment_id", id), slog.Any("error", err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment updated",
		slog.Int64("payment_id", id), slog.Int64("invoice_id", p.InvoiceID), slog.Int64("amount_cents", p.AmountCents))
	return p, nil
}

func (s *paymentService) Delete(ctx context.Context, id int64) error {
	var invoiceID int64
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		p, err := r.Payments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		invoiceID = p.InvoiceID
		inv, err := r.Invoices.GetByID(ctx, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := r.Payments.Delete(ctx, id); err != nil {
			return err
		}

		paid, err := r.Payments.TotalPaid(ctx, inv.ID)
		if err != nil {
			return err
		}
		remaining, err := r.Payments.Count(ctx, inv.ID)
		if err != nil {
			return err
		}
		return s.apply(ctx, r, inv, domain.StatusAfterDecrease(inv.Status, paid, inv.TotalCents, remaining))
	})
	if err != nil {
		s.logger.DebugContext(ctx, "payment delete rejected", slog.Int64("payment_id", id), slog.Any("error", err))
		return err
	}
	s.logger.InfoContext(ctx, "payment deleted", slog.Int64("payment_id", id), slog.Int64("invoice_id", invoiceID))
	return nil
}

func (s *paymentService) Get(ctx context.Context, id int64) (*domain.Payment, error) {
	return s.store.Repos().Payments.GetByID(ctx, id)
}

func (s *paymentService) List(ctx context.Context, invoiceID int64) ([]*domain.Payment, error) {
	r := s.store.Repos()
	if _, err := r.Invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return r.Payments.ListByInvoice(ctx, invoiceID)
}

func (s *paymentService) Balance(ctx context.Context, invoiceID int64) (*domain.Balance, error) {
	return balance(ctx, s.store.Repos(), invoiceID)
}

func (s *paymentService) Reconcile(ctx context.Context, invoiceID int64) (*domain.Balance, error) {
	var b *domain.Balance
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		inv, err := r.Invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		paid, err := r.Payments.TotalPaid(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, r, inv, domain.ReconcileStatus(inv.Status, paid, inv.TotalCents)); err != nil {
			return err
		}
		b, err = balance(ctx, r, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// apply persists a status change produced by reconciliation, if any.
func (s *paymentService) apply(ctx context.Context, r *repository.Repositories, inv *domain.Invoice, status domain.InvoiceStatus) error {
	if inv.Status == status {
		return nil
	}
	from := inv.Status
	setStatus(inv, status, s.clock.Now())
	if err := r.Invoices.Update(ctx, inv); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "invoice reconciled",
		slog.Int64("invoice_id", inv.ID), slog.String("from", string(from)), slog.String("to", string(status)))
	return nil
}

func balance(ctx context.Context, r *repository.Repositories, invoiceID int64) (*domain.Balance, error) {
	inv, err := r.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	paid, err := r.Payments.TotalPaid(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &domain.Balance{
		InvoiceID:        invoiceID,
		TotalCents:       inv.TotalCents,
		PaidCents:        paid,
		OutstandingCents: inv.TotalCents - paid,
		Status:           inv.Status,
	}, nil
}
