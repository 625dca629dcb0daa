package repository

import (
	"context"
	"fmt"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// PaymentRepo is a SQLite implementation of PaymentRepository
type PaymentRepo struct {
	db db.Querier
}

// NewPaymentRepo creates a new PaymentRepo
func NewPaymentRepo(q db.Querier) *PaymentRepo {
	return &PaymentRepo{db: q}
}

const paymentColumns = `id, invoice_id, amount_cents, payment_date, method, reference, notes, created_at, updated_at`

// Create records a payment
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO payments (invoice_id, amount_cents, payment_date, method, reference, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		p.InvoiceID,
		p.AmountCents,
		formatDate(p.PaymentDate),
		p.Method,
		p.Reference,
		p.Notes,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get payment ID: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepo) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound, "get payment")
	}
	return p, nil
}

// Update rewrites a payment's fields
func (r *PaymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE payments
		SET amount_cents = ?, payment_date = ?, method = ?, reference = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		p.AmountCents,
		formatDate(p.PaymentDate),
		p.Method,
		p.Reference,
		p.Notes,
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return expectOne(result, domain.ErrPaymentNotFound)
}

// Delete removes a payment
func (r *PaymentRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return expectOne(result, domain.ErrPaymentNotFound)
}

// ListByInvoice returns an invoice's payments, oldest first
func (r *PaymentRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE invoice_id = ? ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// TotalPaid sums the payments recorded against an invoice
func (r *PaymentRepo) TotalPaid(ctx context.Context, invoiceID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE invoice_id = ?`, invoiceID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total, nil
}

// Count returns how many payments an invoice has
func (r *PaymentRepo) Count(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = ?`, invoiceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return n, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var paymentDate, createdAt, updatedAt string
	err := s.Scan(
		&p.ID,
		&p.InvoiceID,
		&p.AmountCents,
		&paymentDate,
		&p.Method,
		&p.Reference,
		&p.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.PaymentDate, err = parseDate(paymentDate); err != nil {
		return nil, fmt.Errorf("failed to parse payment_date: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return p, nil
}
