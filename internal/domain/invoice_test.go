package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProrateAndRounding(t *testing.T) {
	require.Equal(t, int64(5000), ProrateCents(1800, 10000))
	require.Equal(t, int64(2500), ProrateCents(900, 10000))
	// 900s at 333 cents/h is 83.25 cents
	require.Equal(t, int64(83), ProrateCents(900, 333))
	// 1800s at 333 cents/h is 166.5 cents, rounds half up
	require.Equal(t, int64(167), ProrateCents(1800, 333))
	require.Zero(t, ProrateCents(0, 10000))

	require.Equal(t, int64(7500), AverageRateCents(11250, 5400))
	require.Zero(t, AverageRateCents(100, 0))

	require.Equal(t, int64(825), TaxCents(10000, decimal.RequireFromString("8.25")))
	require.Equal(t, int64(1), TaxCents(10, decimal.RequireFromString("5")))
	require.Equal(t, int64(0), TaxCents(10, decimal.RequireFromString("4.99")))

	require.Equal(t, int64(3750), LineTotalCents(decimal.RequireFromString("1.5"), 2500))
	require.Equal(t, int64(3333), LineTotalCents(decimal.RequireFromString("0.3333"), 10001))
}

func TestValidateTaxRate(t *testing.T) {
	require.NoError(t, ValidateTaxRate(decimal.Zero))
	require.NoError(t, ValidateTaxRate(decimal.RequireFromString("100")))
	require.NoError(t, ValidateTaxRate(decimal.RequireFromString("7.25")))
	require.Error(t, ValidateTaxRate(decimal.RequireFromString("-1")))
	require.Error(t, ValidateTaxRate(decimal.RequireFromString("100.01")))
	require.Error(t, ValidateTaxRate(decimal.RequireFromString("7.125")))
}

func TestParseAndFormatCents(t *testing.T) {
	c, err := ParseCents("123.45")
	require.NoError(t, err)
	require.Equal(t, int64(12345), c)

	c, err = ParseCents("40")
	require.NoError(t, err)
	require.Equal(t, int64(4000), c)

	_, err = ParseCents("1.234")
	require.Error(t, err)
	_, err = ParseCents("abc")
	require.Error(t, err)

	require.Equal(t, "123.45", FormatCents(12345))
	require.Equal(t, "0.05", FormatCents(5))
}

func TestCalculateTotalsIdempotent(t *testing.T) {
	inv := &Invoice{TaxRate: decimal.RequireFromString("10")}
	inv.Items = []*InvoiceItem{
		NewInvoiceItem("Design", decimal.RequireFromString("2"), 5000),
		NewInvoiceItem("Hosting", decimal.RequireFromString("1"), 1999),
	}
	inv.CalculateTotals()
	require.Equal(t, int64(11999), inv.SubtotalCents)
	require.Equal(t, int64(1200), inv.TaxAmountCents)
	require.Equal(t, int64(13199), inv.TotalCents)

	inv.CalculateTotals()
	require.Equal(t, int64(13199), inv.TotalCents)
	require.Equal(t, inv.SubtotalCents+inv.TaxAmountCents, inv.TotalCents)
}

func TestReconcileStatus(t *testing.T) {
	tests := []struct {
		current InvoiceStatus
		paid    int64
		want    InvoiceStatus
	}{
		{InvoiceStatusDraft, 0, InvoiceStatusDraft},
		{InvoiceStatusDraft, 1, InvoiceStatusSent},
		{InvoiceStatusDraft, 10000, InvoiceStatusPaid},
		{InvoiceStatusSent, 5000, InvoiceStatusSent},
		{InvoiceStatusOverdue, 5000, InvoiceStatusOverdue},
		{InvoiceStatusOverdue, 10000, InvoiceStatusPaid},
		{InvoiceStatusCancelled, 10000, InvoiceStatusCancelled},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ReconcileStatus(tt.current, tt.paid, 10000), "%s paid=%d", tt.current, tt.paid)
	}
}

func TestStatusAfterDecrease(t *testing.T) {
	require.Equal(t, InvoiceStatusDraft, StatusAfterDecrease(InvoiceStatusPaid, 0, 10000, 0))
	require.Equal(t, InvoiceStatusSent, StatusAfterDecrease(InvoiceStatusPaid, 4000, 10000, 1))
	require.Equal(t, InvoiceStatusOverdue, StatusAfterDecrease(InvoiceStatusOverdue, 4000, 10000, 1))
	require.Equal(t, InvoiceStatusPaid, StatusAfterDecrease(InvoiceStatusPaid, 10000, 10000, 1))
}

func TestManualTransitions(t *testing.T) {
	require.NoError(t, InvoiceStatusDraft.CanTransitionTo(InvoiceStatusSent))
	require.NoError(t, InvoiceStatusSent.CanTransitionTo(InvoiceStatusOverdue))
	require.NoError(t, InvoiceStatusCancelled.CanTransitionTo(InvoiceStatusDraft))
	require.Error(t, InvoiceStatusDraft.CanTransitionTo(InvoiceStatusPaid))
	require.Error(t, InvoiceStatusPaid.CanTransitionTo(InvoiceStatusSent))
	require.Error(t, InvoiceStatusDraft.CanTransitionTo(InvoiceStatusOverdue))
}

func TestBuildSessionItemsGrouped(t *testing.T) {
	mk := func(id, project, dur, rate int64) *TimeSession {
		amount := ProrateCents(dur, rate)
		return &TimeSession{
			ID: id, ProjectID: project, ClientID: 1, Status: SessionStopped,
			StartTime: t0, DurationSeconds: &dur, HourlyRateCents: rate,
			BillableAmountCents: &amount, IsBillable: true,
		}
	}
	sessions := []*TimeSession{
		mk(1, 20, 3600, 10000),
		mk(2, 10, 900, 8000),
		mk(3, 20, 1800, 5000),
	}
	names := map[int64]string{10: "Audit", 20: "Website"}

	grouped := BuildSessionItems(sessions, names, true)
	require.Len(t, grouped, 2)
	require.Equal(t, "Website - 1.50 hours", grouped[0].Item.Description)
	require.Equal(t, int64(12500), grouped[0].Item.TotalCents)
	require.True(t, grouped[0].Item.Quantity.Equal(decimal.RequireFromString("1.5")))
	require.Equal(t, int64(8333), grouped[0].Item.UnitPriceCents)
	require.Len(t, grouped[0].Sessions, 2)
	require.Equal(t, int64(2000), grouped[1].Item.TotalCents)

	flat := BuildSessionItems(sessions, names, false)
	require.Len(t, flat, 3)
	require.Equal(t, "Website (2026-03-02)", flat[0].Item.Description)
	require.Equal(t, int64(10000), flat[0].Item.UnitPriceCents)
	require.Equal(t, int64(10000), flat[0].Item.TotalCents)
	require.Equal(t, 2, flat[2].Item.Position)
}
