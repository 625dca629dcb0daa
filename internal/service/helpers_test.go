package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *repository.Store
	clock    *fakeClock
	sessions SessionService
	invoices InvoiceService
	payments PaymentService
	settings SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "tally.db"), "test-key", db.Options{BusyTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.RunMigrations())

	store := repository.NewStore(d)
	require.NoError(t, store.Repos().Settings.Ensure(context.Background(), domain.Settings{
		InvoicePrefix:     "INV-",
		NextInvoiceNumber: 1,
		Currency:          "USD",
		PaymentTermsDays:  30,
		DefaultTaxRate:    decimal.Zero,
	}))

	clock := &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	return &testEnv{
		store:    store,
		clock:    clock,
		sessions: NewSessionService(store, WithClock(clock)),
		invoices: NewInvoiceService(store, WithClock(clock)),
		payments: NewPaymentService(store, WithClock(clock)),
		settings: NewSettingsService(store),
	}
}

func (e *testEnv) client(t *testing.T, name string) *domain.Client {
	t.Helper()
	c := domain.NewClient(name, "", e.clock.Now())
	require.NoError(t, e.store.Repos().Clients.Create(context.Background(), c))
	return c
}

func (e *testEnv) project(t *testing.T, clientID int64, name string, rate int64) *domain.Project {
	t.Helper()
	p := domain.NewProject(clientID, name, rate, e.clock.Now())
	require.NoError(t, e.store.Repos().Projects.Create(context.Background(), p))
	return p
}

// track starts a session on p, lets d pass and stops it.
func (e *testEnv) track(t *testing.T, p *domain.Project, d time.Duration) *domain.TimeSession {
	t.Helper()
	ctx := context.Background()
	s, err := e.sessions.Start(ctx, p.ID, "work", true)
	require.NoError(t, err)
	e.clock.Advance(d)
	s, err = e.sessions.Stop(ctx, s.ID)
	require.NoError(t, err)
	return s
}

// manualInvoice creates a draft invoice totalling totalCents with no tax.
func (e *testEnv) manualInvoice(t *testing.T, clientID, totalCents int64) *domain.Invoice {
	t.Helper()
	inv, err := e.invoices.CreateManual(context.Background(), ManualInvoiceInput{
		InvoiceHeader: InvoiceHeader{ClientID: clientID},
		Items:         []ItemInput{{Description: "Consulting", Quantity: decimal.NewFromInt(1), UnitPriceCents: totalCents}},
	})
	require.NoError(t, err)
	return inv
}
