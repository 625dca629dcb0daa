package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

var now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "repo.db"), "test-key", db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.RunMigrations())

	s := NewStore(d)
	require.NoError(t, s.Repos().Settings.Ensure(context.Background(), domain.Settings{
		InvoicePrefix: "INV-", NextInvoiceNumber: 1, Currency: "USD", PaymentTermsDays: 30,
	}))
	return s
}

func seedProject(t *testing.T, r *Repositories) *domain.Project {
	t.Helper()
	ctx := context.Background()
	c := domain.NewClient("Acme", "ap@acme.test", now)
	require.NoError(t, r.Clients.Create(ctx, c))
	p := domain.NewProject(c.ID, "Website", 10000, now)
	require.NoError(t, r.Projects.Create(ctx, p))
	return p
}

func TestInTxReportsLockTimeoutAsConflict(t *testing.T) {
	d, err := db.Open(filepath.Join(t.TempDir(), "busy.db"), "test-key", db.Options{BusyTimeout: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.RunMigrations())
	s := NewStore(d)
	ctx := context.Background()

	// holds the write lock on its own connection
	holder, err := d.BeginTx(ctx, nil)
	require.NoError(t, err)

	ran := false
	err = s.InTx(ctx, func(r *Repositories) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	require.False(t, ran)
	require.True(t, domain.IsConflict(err), "%v", err)
	require.Contains(t, err.Error(), "database is busy")

	require.NoError(t, holder.Rollback())
	require.NoError(t, s.InTx(ctx, func(r *Repositories) error { return nil }))
}

func TestSessionInsertIfNoneActive(t *testing.T) {
	s := newTestStore(t)
	r := s.Repos()
	ctx := context.Background()
	p := seedProject(t, r)

	first := domain.NewTimeSession(p, "one", true, now)
	require.NoError(t, r.Sessions.InsertIfNoneActive(ctx, first))
	require.NotZero(t, first.ID)

	second := domain.NewTimeSession(p, "two", true, now)
	err := r.Sessions.InsertIfNoneActive(ctx, second)
	require.ErrorIs(t, err, domain.ErrSessionActive)
	require.True(t, domain.IsConflict(err))

	active, err := r.Sessions.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
	require.Equal(t, int64(10000), active.HourlyRateCents)
	require.Equal(t, p.ClientID, active.ClientID)
}

func TestSessionCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	r := s.Repos()
	ctx := context.Background()
	p := seedProject(t, r)

	sess := domain.NewTimeSession(p, "", true, now)
	require.NoError(t, r.Sessions.InsertIfNoneActive(ctx, sess))

	require.NoError(t, r.Sessions.CompareAndSwapStatus(ctx, sess.ID, domain.SessionRunning, domain.SessionPaused, now))
	err := r.Sessions.CompareAndSwapStatus(ctx, sess.ID, domain.SessionRunning, domain.SessionPaused, now)
	require.ErrorIs(t, err, domain.ErrSessionChanged)

	require.NoError(t, sess.Apply(domain.EventStop, now.Add(time.Minute)))
	require.NoError(t, r.Sessions.SaveStop(ctx, sess, domain.SessionPaused))

	got, err := r.Sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionStopped, got.Status)
	require.Equal(t, int64(900), *got.DurationSeconds)
	require.Equal(t, int64(2500), *got.BillableAmountCents)
	require.Equal(t, now.Add(time.Minute), *got.EndTime)

	_, err = r.Sessions.GetByID(ctx, 999)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAllocateInvoiceNumberConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	results := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(r *Repositories) error {
				_, num, err := r.Settings.AllocateInvoiceNumber(ctx)
				if err != nil {
					return err
				}
				results <- num
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[int64]bool)
	for num := range results {
		require.False(t, seen[num], "duplicate number %d", num)
		seen[num] = true
	}
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i], "missing number %d", i)
	}

	settings, err := s.Repos().Settings.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(n+1), settings.NextInvoiceNumber)
}

func TestInTxRollsBackInvoiceAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s.Repos())

	sess := domain.NewTimeSession(p, "", true, now)
	require.NoError(t, s.Repos().Sessions.InsertIfNoneActive(ctx, sess))
	require.NoError(t, sess.Apply(domain.EventStop, now.Add(time.Hour)))
	require.NoError(t, s.Repos().Sessions.SaveStop(ctx, sess, domain.SessionRunning))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(r *Repositories) error {
		inv := &domain.Invoice{
			InvoiceNumber: "INV-0001", ClientID: p.ClientID, IssueDate: now, DueDate: now,
			Status: domain.InvoiceStatusDraft, TaxRate: decimal.Zero, Currency: "USD",
			CreatedAt: now, UpdatedAt: now,
		}
		if err := r.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		item := &domain.InvoiceItem{Description: "x", Quantity: decimal.NewFromInt(1), TotalCents: 10000, CreatedAt: now}
		if err := r.Invoices.AddItem(ctx, inv.ID, item); err != nil {
			return err
		}
		if err := r.Sessions.LinkToItem(ctx, sess.ID, item.ID, now); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	invoices, err := s.Repos().Invoices.List(ctx, InvoiceFilter{})
	require.NoError(t, err)
	require.Empty(t, invoices)

	got, err := s.Repos().Sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, got.InvoiceItemID)
}

func TestLinkToItemGuard(t *testing.T) {
	s := newTestStore(t)
	r := s.Repos()
	ctx := context.Background()
	p := seedProject(t, r)

	sess := domain.NewTimeSession(p, "", true, now)
	require.NoError(t, r.Sessions.InsertIfNoneActive(ctx, sess))

	// running sessions cannot be billed
	err := r.Sessions.LinkToItem(ctx, sess.ID, 1, now)
	require.ErrorIs(t, err, domain.ErrSessionBilled)
}
