package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// InvoiceRepo is a SQLite implementation of InvoiceRepository
type InvoiceRepo struct {
	db db.Querier
}

// NewInvoiceRepo creates a new InvoiceRepo
func NewInvoiceRepo(q db.Querier) *InvoiceRepo {
	return &InvoiceRepo{db: q}
}

const invoiceColumns = `id, invoice_number, client_id, issue_date, due_date, status,
	subtotal_cents, tax_rate, tax_amount_cents, total_cents, currency, notes, terms,
	paid_date, created_at, updated_at`

const itemColumns = `id, invoice_id, description, quantity, unit_price_cents, total_cents,
	position, from_sessions, created_at`

// Create inserts a new invoice into the database. Items are added separately.
func (r *InvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			invoice_number, client_id, issue_date, due_date, status,
			subtotal_cents, tax_rate, tax_amount_cents, total_cents,
			currency, notes, terms, paid_date, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var paidDate any
	if invoice.PaidDate != nil {
		paidDate = formatDate(*invoice.PaidDate)
	}

	result, err := r.db.ExecContext(ctx, query,
		invoice.InvoiceNumber,
		invoice.ClientID,
		formatDate(invoice.IssueDate),
		formatDate(invoice.DueDate),
		invoice.Status,
		invoice.SubtotalCents,
		invoice.TaxRate,
		invoice.TaxAmountCents,
		invoice.TotalCents,
		invoice.Currency,
		invoice.Notes,
		invoice.Terms,
		paidDate,
		formatTime(invoice.CreatedAt),
		formatTime(invoice.UpdatedAt),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Conflictf("invoice number %s already exists", invoice.InvoiceNumber)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice ID: %w", err)
	}

	invoice.ID = id
	return nil
}

// GetByID retrieves an invoice by ID, without items
func (r *InvoiceRepo) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, notFound(err, domain.ErrInvoiceNotFound, "get invoice")
	}
	return inv, nil
}

// GetByNumber retrieves an invoice by its number
func (r *InvoiceRepo) GetByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = ?`, number)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, notFound(err, domain.ErrInvoiceNotFound, "get invoice")
	}
	return inv, nil
}

// List retrieves invoices with optional filters, newest first
func (r *InvoiceRepo) List(ctx context.Context, f InvoiceFilter) ([]*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1 = 1`
	args := make([]any, 0)

	if f.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *f.ClientID)
	}
	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, *f.Status)
	}
	query += " ORDER BY issue_date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// Update updates an existing invoice header, totals and status
func (r *InvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE invoices
		SET issue_date = ?, due_date = ?, status = ?, subtotal_cents = ?, tax_rate = ?,
		    tax_amount_cents = ?, total_cents = ?, currency = ?, notes = ?, terms = ?,
		    paid_date = ?, updated_at = ?
		WHERE id = ?
	`

	var paidDate any
	if invoice.PaidDate != nil {
		paidDate = formatDate(*invoice.PaidDate)
	}

	result, err := r.db.ExecContext(ctx, query,
		formatDate(invoice.IssueDate),
		formatDate(invoice.DueDate),
		invoice.Status,
		invoice.SubtotalCents,
		invoice.TaxRate,
		invoice.TaxAmountCents,
		invoice.TotalCents,
		invoice.Currency,
		invoice.Notes,
		invoice.Terms,
		paidDate,
		formatTime(invoice.UpdatedAt),
		invoice.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return expectOne(result, domain.ErrInvoiceNotFound)
}

// Delete removes an invoice and its items. Callers unlink sessions and check
// payments first; nothing cascades.
func (r *InvoiceRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete invoice items: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return expectOne(result, domain.ErrInvoiceNotFound)
}

// AddItem adds an item to an invoice
func (r *InvoiceRepo) AddItem(ctx context.Context, invoiceID int64, item *domain.InvoiceItem) error {
	query := `
		INSERT INTO invoice_items (
			invoice_id, description, quantity, unit_price_cents, total_cents,
			position, from_sessions, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		invoiceID,
		item.Description,
		item.Quantity,
		item.UnitPriceCents,
		item.TotalCents,
		item.Position,
		item.FromSessions,
		formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add invoice item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice item ID: %w", err)
	}
	item.ID = id
	item.InvoiceID = invoiceID
	return nil
}

// UpdateItem rewrites an item's description, quantity and amounts
func (r *InvoiceRepo) UpdateItem(ctx context.Context, item *domain.InvoiceItem) error {
	query := `
		UPDATE invoice_items
		SET description = ?, quantity = ?, unit_price_cents = ?, total_cents = ?, position = ?
		WHERE id = ? AND invoice_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		item.Description,
		item.Quantity,
		item.UnitPriceCents,
		item.TotalCents,
		item.Position,
		item.ID,
		item.InvoiceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice item: %w", err)
	}
	return expectOne(result, domain.ErrInvoiceItemNotFound)
}

// DeleteItem removes a specific item from an invoice
func (r *InvoiceRepo) DeleteItem(ctx context.Context, invoiceID, itemID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE id = ? AND invoice_id = ?`, itemID, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to delete invoice item: %w", err)
	}
	return expectOne(result, domain.ErrInvoiceItemNotFound)
}

// GetItem retrieves one item of an invoice
func (r *InvoiceRepo) GetItem(ctx context.Context, invoiceID, itemID int64) (*domain.InvoiceItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM invoice_items WHERE id = ? AND invoice_id = ?`, itemID, invoiceID)
	item, err := scanItem(row)
	if err != nil {
		return nil, notFound(err, domain.ErrInvoiceItemNotFound, "get invoice item")
	}
	return item, nil
}

// GetItems retrieves all items for an invoice in display order
func (r *InvoiceRepo) GetItems(ctx context.Context, invoiceID int64) ([]*domain.InvoiceItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id = ? ORDER BY position, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.InvoiceItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice items: %w", err)
	}
	return items, nil
}

func scanInvoice(s scanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	var issueDate, dueDate, createdAt, updatedAt string
	var paidDate sql.NullString

	err := s.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.ClientID,
		&issueDate,
		&dueDate,
		&inv.Status,
		&inv.SubtotalCents,
		&inv.TaxRate,
		&inv.TaxAmountCents,
		&inv.TotalCents,
		&inv.Currency,
		&inv.Notes,
		&inv.Terms,
		&paidDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if inv.IssueDate, err = parseDate(issueDate); err != nil {
		return nil, fmt.Errorf("failed to parse issue_date: %w", err)
	}
	if inv.DueDate, err = parseDate(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	if inv.PaidDate, err = parseNullDate(paidDate); err != nil {
		return nil, fmt.Errorf("failed to parse paid_date: %w", err)
	}
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if inv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return inv, nil
}

func scanItem(s scanner) (*domain.InvoiceItem, error) {
	item := &domain.InvoiceItem{}
	var createdAt string
	err := s.Scan(
		&item.ID,
		&item.InvoiceID,
		&item.Description,
		&item.Quantity,
		&item.UnitPriceCents,
		&item.TotalCents,
		&item.Position,
		&item.FromSessions,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return item, nil
}
