package domain

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentCheck        PaymentMethod = "check"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentOther        PaymentMethod = "other"
)

var paymentMethods = []PaymentMethod{
	PaymentBankTransfer, PaymentCash, PaymentCard, PaymentCheck, PaymentPayPal, PaymentOther,
}

// ParsePaymentMethod validates a method name; empty means bank transfer.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PaymentBankTransfer, nil
	}
	for _, m := range paymentMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", BadRequestf("unknown payment method %q", s)
}

type Payment struct {
	ID          int64
	InvoiceID   int64
	AmountCents int64
	PaymentDate time.Time
	Method      PaymentMethod
	Reference   string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate returns an error if the payment is invalid
func (p *Payment) Validate() error {
	if p.InvoiceID <= 0 {
		return BadRequestf("invoice ID is required")
	}
	if p.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if p.PaymentDate.IsZero() {
		return BadRequestf("payment date is required")
	}
	if _, err := ParsePaymentMethod(string(p.Method)); err != nil {
		return err
	}
	return nil
}

// PaymentPatch changes an existing payment. Nil fields are left unchanged.
type PaymentPatch struct {
	AmountCents *int64
	PaymentDate *time.Time
	Method      *PaymentMethod
	Reference   *string
	Notes       *string
}

// Apply copies the set fields of p onto pay.
func (p PaymentPatch) Apply(pay *Payment) {
	if p.AmountCents != nil {
		pay.AmountCents = *p.AmountCents
	}
	if p.PaymentDate != nil {
		pay.PaymentDate = DateOf(*p.PaymentDate)
	}
	if p.Method != nil {
		pay.Method = *p.Method
	}
	if p.Reference != nil {
		pay.Reference = *p.Reference
	}
	if p.Notes != nil {
		pay.Notes = *p.Notes
	}
}

// Balance summarizes what has been paid against an invoice.
type Balance struct {
	InvoiceID        int64
	TotalCents       int64
	PaidCents        int64
	OutstandingCents int64
	Status           InvoiceStatus
}

// CheckOverpayment rejects a new cumulative total that exceeds the invoice.
func CheckOverpayment(newPaidCents, previousPaidCents, totalCents int64) error {
	if newPaidCents > totalCents {
		return fmt.Errorf("%w: outstanding balance is %s", ErrOverpayment, FormatCents(totalCents-previousPaidCents))
	}
	return nil
}
