package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Settings is the singleton row holding invoice numbering and defaults.
type Settings struct {
	InvoicePrefix     string
	NextInvoiceNumber int64
	Currency          string
	PaymentTermsDays  int
	DefaultTaxRate    decimal.Decimal
}

// FormatInvoiceNumber renders a number as prefix plus at least four digits.
func FormatInvoiceNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}

// Validate returns an error if the settings are invalid
func (s *Settings) Validate() error {
	if s.NextInvoiceNumber < 1 {
		return BadRequestf("next invoice number must be at least 1")
	}
	if s.PaymentTermsDays < 0 {
		return BadRequestf("payment terms cannot be negative")
	}
	if len(strings.TrimSpace(s.Currency)) != 3 {
		return BadRequestf("currency must be a three letter code")
	}
	return ValidateTaxRate(s.DefaultTaxRate)
}

// SettingsPatch updates settings. NextInvoiceNumber may only move forward.
type SettingsPatch struct {
	InvoicePrefix     *string
	NextInvoiceNumber *int64
	Currency          *string
	PaymentTermsDays  *int
	DefaultTaxRate    *decimal.Decimal
}

// Apply copies set fields onto s after checking the counter does not rewind.
func (p SettingsPatch) Apply(s *Settings) error {
	if p.NextInvoiceNumber != nil && *p.NextInvoiceNumber < s.NextInvoiceNumber {
		return BadRequestf("next invoice number cannot move backwards (currently %d)", s.NextInvoiceNumber)
	}
	if p.InvoicePrefix != nil {
		s.InvoicePrefix = strings.TrimSpace(*p.InvoicePrefix)
	}
	if p.NextInvoiceNumber != nil {
		s.NextInvoiceNumber = *p.NextInvoiceNumber
	}
	if p.Currency != nil {
		s.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.PaymentTermsDays != nil {
		s.PaymentTermsDays = *p.PaymentTermsDays
	}
	if p.DefaultTaxRate != nil {
		s.DefaultTaxRate = *p.DefaultTaxRate
	}
	return s.Validate()
}
