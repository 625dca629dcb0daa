package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// manualTransitions lists the status changes a user may request directly.
// Paid is only ever reached through payment reconciliation.
var manualTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusCancelled: {InvoiceStatusDraft},
	InvoiceStatusPaid:      {},
}

func (s InvoiceStatus) Valid() bool {
	_, ok := manualTransitions[s]
	return ok
}

// ParseInvoiceStatus validates a user supplied status name.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	st := InvoiceStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", BadRequestf("unknown invoice status %q", s)
	}
	return st, nil
}

// CanTransitionTo checks a manual status change.
func (s InvoiceStatus) CanTransitionTo(to InvoiceStatus) error {
	if to == InvoiceStatusPaid {
		return BadRequestf("invoices become paid only by recording payments")
	}
	for _, allowed := range manualTransitions[s] {
		if allowed == to {
			return nil
		}
	}
	return BadRequestf("cannot change invoice status from %s to %s", s, to)
}

type Invoice struct {
	ID             int64
	InvoiceNumber  string
	ClientID       int64
	IssueDate      time.Time
	DueDate        time.Time
	Status         InvoiceStatus
	SubtotalCents  int64
	TaxRate        decimal.Decimal // percent, e.g. 8.25
	TaxAmountCents int64
	TotalCents     int64
	Currency       string
	Notes          string
	Terms          string
	PaidDate       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Related data (populated by services)
	Items    []*InvoiceItem
	Payments []*Payment
}

type InvoiceItem struct {
	ID             int64
	InvoiceID      int64
	Description    string
	Quantity       decimal.Decimal
	UnitPriceCents int64
	TotalCents     int64
	Position       int
	FromSessions   bool // total is the exact sum of linked session amounts
	CreatedAt      time.Time
}

// NewInvoiceItem creates a manual item with its total derived from quantity and price.
func NewInvoiceItem(description string, quantity decimal.Decimal, unitPriceCents int64) *InvoiceItem {
	return &InvoiceItem{
		Description:    strings.TrimSpace(description),
		Quantity:       quantity,
		UnitPriceCents: unitPriceCents,
		TotalCents:     LineTotalCents(quantity, unitPriceCents),
	}
}

// Validate returns an error if the item is invalid
func (it *InvoiceItem) Validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return BadRequestf("item description is required")
	}
	if !it.Quantity.IsPositive() {
		return BadRequestf("item quantity must be positive")
	}
	if it.UnitPriceCents < 0 {
		return BadRequestf("item unit price cannot be negative")
	}
	return nil
}

// CalculateTotals recalculates subtotal, tax, and total from items
func (i *Invoice) CalculateTotals() {
	i.SubtotalCents = 0
	for _, item := range i.Items {
		i.SubtotalCents += item.TotalCents
	}
	i.TaxAmountCents = TaxCents(i.SubtotalCents, i.TaxRate)
	i.TotalCents = i.SubtotalCents + i.TaxAmountCents
}

// CanEditItems returns nil if items may be added, changed or removed.
func (i *Invoice) CanEditItems() error {
	switch i.Status {
	case InvoiceStatusPaid:
		return ErrInvoicePaid
	case InvoiceStatusCancelled:
		return ErrInvoiceCancelled
	}
	return nil
}

// CanDelete returns nil if the invoice may be removed.
func (i *Invoice) CanDelete(paymentCount int) error {
	if i.Status == InvoiceStatusPaid {
		return ErrInvoicePaid
	}
	if paymentCount > 0 {
		return ErrInvoiceHasPayments
	}
	return nil
}

// IsOverdue reports whether a sent invoice's due date lies before asOf.
func (i *Invoice) IsOverdue(asOf time.Time) bool {
	return i.Status == InvoiceStatusSent && i.DueDate.Before(DateOf(asOf))
}

// Validate returns an error if the invoice is invalid
func (i *Invoice) Validate() error {
	if i.InvoiceNumber == "" {
		return BadRequestf("invoice number is required")
	}
	if i.ClientID <= 0 {
		return BadRequestf("client ID is required")
	}
	if i.IssueDate.IsZero() {
		return BadRequestf("issue date is required")
	}
	if i.DueDate.Before(i.IssueDate) {
		return BadRequestf("due date must not be before issue date")
	}
	if !i.Status.Valid() {
		return BadRequestf("invalid invoice status %q", i.Status)
	}
	return ValidateTaxRate(i.TaxRate)
}

// ReconcileStatus derives an invoice status from cumulative payments. It never
// moves an invoice backward and never invents an overdue transition.
func ReconcileStatus(current InvoiceStatus, paidCents, totalCents int64) InvoiceStatus {
	switch {
	case current == InvoiceStatusCancelled:
		return current
	case paidCents >= totalCents:
		return InvoiceStatusPaid
	case paidCents > 0 && current == InvoiceStatusDraft:
		return InvoiceStatusSent
	}
	return current
}

// StatusAfterDecrease handles a drop in cumulative payments. A paid invoice
// that is no longer covered falls back to sent while payments remain and to
// draft once none do.
func StatusAfterDecrease(current InvoiceStatus, paidCents, totalCents int64, remaining int) InvoiceStatus {
	if current == InvoiceStatusPaid && paidCents < totalCents {
		if remaining > 0 {
			return InvoiceStatusSent
		}
		return InvoiceStatusDraft
	}
	return ReconcileStatus(current, paidCents, totalCents)
}
