package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

func TestCreateFromSessionsGroupedByProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	web := env.project(t, c.ID, "Website", 10000)
	api := env.project(t, c.ID, "API", 7500)

	s1 := env.track(t, web, time.Hour)
	s2 := env.track(t, api, 20*time.Minute)
	s3 := env.track(t, web, 40*time.Minute)

	rate := decimal.RequireFromString("8.25")
	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader:  InvoiceHeader{ClientID: c.ID, TaxRate: &rate},
		SessionIDs:     []int64{s1.ID, s2.ID, s3.ID},
		GroupByProject: true,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-0001", inv.InvoiceNumber)
	require.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	require.Equal(t, env.clock.Now().AddDate(0, 0, 30).Format("2006-01-02"), inv.DueDate.Format("2006-01-02"))

	require.Len(t, inv.Items, 2)
	require.Equal(t, "Website - 1.75 hours", inv.Items[0].Description)
	require.Equal(t, int64(17500), inv.Items[0].TotalCents)
	require.Equal(t, "API - 0.50 hours", inv.Items[1].Description)
	require.Equal(t, int64(3750), inv.Items[1].TotalCents)

	require.Equal(t, int64(21250), inv.SubtotalCents)
	require.Equal(t, int64(1753), inv.TaxAmountCents)
	require.Equal(t, int64(23003), inv.TotalCents)

	for _, id := range []int64{s1.ID, s2.ID, s3.ID} {
		s, err := env.sessions.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, s.IsBilled())
		require.NotNil(t, s.BilledAt)
	}

	stored, err := env.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.TotalCents, stored.TotalCents)
	require.Len(t, stored.Items, 2)
	require.True(t, stored.Items[0].FromSessions)
}

func TestCreateFromSessionsOneItemPerSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 9000)

	a := env.track(t, p, 10*time.Minute)
	b := env.track(t, p, 50*time.Minute)

	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{a.ID, b.ID},
	})
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	require.Equal(t, "work (2026-05-04)", inv.Items[0].Description)

	var sum int64
	for _, it := range inv.Items {
		sum += it.TotalCents
	}
	require.Equal(t, a.Amount()+b.Amount(), sum)
	require.Equal(t, sum, inv.TotalCents)
}

func TestSessionsAreNeverBilledTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 10000)
	s := env.track(t, p, time.Hour)

	in := SessionInvoiceInput{InvoiceHeader: InvoiceHeader{ClientID: c.ID}, SessionIDs: []int64{s.ID}}
	_, err := env.invoices.CreateFromSessions(ctx, in)
	require.NoError(t, err)

	_, err = env.invoices.CreateFromSessions(ctx, in)
	require.True(t, domain.IsBadRequest(err))

	invoices, err := env.invoices.List(ctx, repository.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	settings, err := env.settings.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), settings.NextInvoiceNumber, "rejected request must not consume a number")
}

func TestConcurrentBillingOfSameSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	s := env.track(t, env.project(t, c.ID, "Website", 10000), time.Hour)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
				InvoiceHeader: InvoiceHeader{ClientID: c.ID},
				SessionIDs:    []int64{s.ID},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, domain.IsBadRequest(err), err)
	}
	require.Equal(t, 1, succeeded)
}

func TestCreateFromSessionsRejectsBadSelections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.client(t, "Acme")
	globex := env.client(t, "Globex")
	mine := env.track(t, env.project(t, acme.ID, "Website", 10000), time.Hour)
	theirs := env.track(t, env.project(t, globex.ID, "Portal", 10000), time.Hour)
	running, err := env.sessions.Start(ctx, mine.ProjectID, "", true)
	require.NoError(t, err)

	cases := []struct {
		name string
		ids  []int64
		want error
	}{
		{"empty", nil, domain.ErrNoSessionsSelected},
		{"duplicate", []int64{mine.ID, mine.ID}, domain.ErrDuplicateSessionID},
		{"other client", []int64{mine.ID, theirs.ID}, domain.ErrClientMismatch},
		{"missing", []int64{mine.ID, 999}, domain.ErrSessionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
				InvoiceHeader: InvoiceHeader{ClientID: acme.ID},
				SessionIDs:    tc.ids,
			})
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err = env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: acme.ID},
		SessionIDs:    []int64{running.ID},
	})
	require.True(t, domain.IsBadRequest(err))

	got, err := env.sessions.Get(ctx, mine.ID)
	require.NoError(t, err)
	require.False(t, got.IsBilled())
}

// failingTransactor wraps a real store and makes the nth LinkToItem call fail.
type failingTransactor struct {
	*repository.Store
	failOn int
}

type failingSessions struct {
	repository.SessionRepository
	calls  *int
	failOn int
}

func (f failingSessions) LinkToItem(ctx context.Context, sessionID, itemID int64, at time.Time) error {
	*f.calls++
	if *f.calls == f.failOn {
		return errors.New("disk on fire")
	}
	return f.SessionRepository.LinkToItem(ctx, sessionID, itemID, at)
}

func (f *failingTransactor) InTx(ctx context.Context, fn func(*repository.Repositories) error) error {
	calls := 0
	return f.Store.InTx(ctx, func(r *repository.Repositories) error {
		wrapped := *r
		wrapped.Sessions = failingSessions{SessionRepository: r.Sessions, calls: &calls, failOn: f.failOn}
		return fn(&wrapped)
	})
}

func TestCreateFromSessionsRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 10000)
	a := env.track(t, p, time.Hour)
	b := env.track(t, p, time.Hour)

	svc := NewInvoiceService(&failingTransactor{Store: env.store, failOn: 2}, WithClock(env.clock))
	_, err := svc.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{a.ID, b.ID},
	})
	require.EqualError(t, err, "disk on fire")

	invoices, err := env.invoices.List(ctx, repository.InvoiceFilter{})
	require.NoError(t, err)
	require.Empty(t, invoices)

	unbilled, err := env.sessions.Unbilled(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, unbilled, 2)

	settings, err := env.settings.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), settings.NextInvoiceNumber)

	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{a.ID, b.ID},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-0001", inv.InvoiceNumber)
}

func TestConcurrentInvoicesGetSequentialNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	numbers := make(map[string]bool)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := env.invoices.CreateManual(ctx, ManualInvoiceInput{
				InvoiceHeader: InvoiceHeader{ClientID: c.ID},
				Items:         []ItemInput{{Description: "Retainer", Quantity: decimal.NewFromInt(1), UnitPriceCents: 1000}},
			})
			if !assertNoError(t, err) {
				return
			}
			mu.Lock()
			numbers[inv.InvoiceNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	for i := 1; i <= n; i++ {
		require.True(t, numbers[fmt.Sprintf("INV-%04d", i)], "missing INV-%04d", i)
	}
}

func assertNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}
	return true
}

func TestItemEditsKeepTotalsConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	rate := decimal.NewFromInt(10)
	inv, err := env.invoices.CreateManual(ctx, ManualInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID, TaxRate: &rate},
		Items: []ItemInput{
			{Description: "Design", Quantity: decimal.RequireFromString("2.5"), UnitPriceCents: 8000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(20000), inv.SubtotalCents)
	require.Equal(t, int64(22000), inv.TotalCents)

	inv, err = env.invoices.AddItem(ctx, inv.ID, ItemInput{Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPriceCents: 1999})
	require.NoError(t, err)
	require.Equal(t, int64(21999), inv.SubtotalCents)
	require.Equal(t, int64(2200), inv.TaxAmountCents)
	require.Equal(t, int64(24199), inv.TotalCents)

	hosting := inv.Items[1]
	qty := decimal.NewFromInt(3)
	inv, err = env.invoices.UpdateItem(ctx, inv.ID, hosting.ID, ItemPatch{Quantity: &qty})
	require.NoError(t, err)
	require.Equal(t, int64(25997), inv.SubtotalCents)

	inv, err = env.invoices.DeleteItem(ctx, inv.ID, hosting.ID)
	require.NoError(t, err)
	require.Equal(t, int64(22000), inv.TotalCents)

	_, err = env.invoices.DeleteItem(ctx, inv.ID, inv.Items[0].ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNoItems)

	again, err := env.invoices.RecalculateTotals(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.SubtotalCents, again.SubtotalCents)
	require.Equal(t, inv.TaxAmountCents, again.TaxAmountCents)
	require.Equal(t, inv.TotalCents, again.TotalCents)
}

func TestSessionDerivedItemsOnlyAllowDescriptionEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 10000)
	a := env.track(t, p, time.Hour)
	b := env.track(t, p, time.Hour)

	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{a.ID, b.ID},
	})
	require.NoError(t, err)

	price := int64(1)
	_, err = env.invoices.UpdateItem(ctx, inv.ID, inv.Items[0].ID, ItemPatch{UnitPriceCents: &price})
	require.ErrorIs(t, err, domain.ErrSessionDerivedItem)

	desc := "Homepage build"
	updated, err := env.invoices.UpdateItem(ctx, inv.ID, inv.Items[0].ID, ItemPatch{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, desc, updated.Items[0].Description)
	require.Equal(t, inv.TotalCents, updated.TotalCents)

	// removing an item releases its session for billing elsewhere
	updated, err = env.invoices.DeleteItem(ctx, inv.ID, inv.Items[1].ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), updated.TotalCents)

	unbilled, err := env.sessions.Unbilled(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	require.Equal(t, b.ID, unbilled[0].ID)
}

func TestZeroLengthSessionsAreNotInvoiced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 10000)
	empty := env.track(t, p, 0)
	require.Zero(t, empty.Duration())
	worked := env.track(t, p, time.Hour)

	_, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{worked.ID, empty.ID},
	})
	require.ErrorIs(t, err, domain.ErrSessionNotBillable)
	require.True(t, domain.IsBadRequest(err))

	unbilled, err := env.sessions.Unbilled(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	require.Equal(t, worked.ID, unbilled[0].ID)

	// every item that does get created stays editable
	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{unbilled[0].ID},
	})
	require.NoError(t, err)
	require.True(t, inv.Items[0].Quantity.IsPositive())

	desc := "Homepage"
	_, err = env.invoices.UpdateItem(ctx, inv.ID, inv.Items[0].ID, ItemPatch{Description: &desc})
	require.NoError(t, err)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	inv := env.manualInvoice(t, c.ID, 10000)

	_, err := env.invoices.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusPaid)
	require.True(t, domain.IsBadRequest(err))
	_, err = env.invoices.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusOverdue)
	require.True(t, domain.IsBadRequest(err))

	inv, err = env.invoices.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusSent)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusSent, inv.Status)

	_, err = env.payments.Create(ctx, PaymentInput{InvoiceID: inv.ID, AmountCents: 100})
	require.NoError(t, err)
	_, err = env.invoices.UpdateStatus(ctx, inv.ID, domain.InvoiceStatusCancelled)
	require.ErrorIs(t, err, domain.ErrInvoiceHasPayments)

	other := env.manualInvoice(t, c.ID, 500)
	other, err = env.invoices.UpdateStatus(ctx, other.ID, domain.InvoiceStatusCancelled)
	require.NoError(t, err)
	_, err = env.invoices.AddItem(ctx, other.ID, ItemInput{Description: "x", Quantity: decimal.NewFromInt(1), UnitPriceCents: 1})
	require.ErrorIs(t, err, domain.ErrInvoiceCancelled)

	other, err = env.invoices.UpdateStatus(ctx, other.ID, domain.InvoiceStatusDraft)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusDraft, other.Status)
}

func TestMarkOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")

	due := env.manualInvoice(t, c.ID, 1000)
	_, err := env.invoices.UpdateStatus(ctx, due.ID, domain.InvoiceStatusSent)
	require.NoError(t, err)
	draft := env.manualInvoice(t, c.ID, 1000)

	changed, err := env.invoices.MarkOverdue(ctx, env.clock.Now().AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Empty(t, changed, "an invoice due today is not overdue yet")

	changed, err = env.invoices.MarkOverdue(ctx, env.clock.Now().AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Equal(t, due.ID, changed[0].ID)

	got, err := env.invoices.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceStatusDraft, got.Status)
}

func TestDeleteInvoiceReleasesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.client(t, "Acme")
	p := env.project(t, c.ID, "Website", 10000)
	s := env.track(t, p, time.Hour)

	inv, err := env.invoices.CreateFromSessions(ctx, SessionInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: c.ID},
		SessionIDs:    []int64{s.ID},
	})
	require.NoError(t, err)

	_, err = env.payments.Create(ctx, PaymentInput{InvoiceID: inv.ID, AmountCents: 500})
	require.NoError(t, err)
	require.ErrorIs(t, env.invoices.Delete(ctx, inv.ID), domain.ErrInvoiceHasPayments)

	payments, err := env.payments.List(ctx, inv.ID)
	require.NoError(t, err)
	require.NoError(t, env.payments.Delete(ctx, payments[0].ID))
	require.NoError(t, env.invoices.Delete(ctx, inv.ID))

	_, err = env.invoices.Get(ctx, inv.ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	got, err := env.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, got.IsBilled())
	require.Nil(t, got.BilledAt)
}
