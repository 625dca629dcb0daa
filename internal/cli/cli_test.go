package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/andy/tally/internal/app"
	"github.com/andy/tally/internal/config"
	"github.com/andy/tally/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{domain.ErrInvoiceNotFound, ExitNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrOverpayment), ExitBadRequest},
		{domain.ErrSessionActive, ExitConflict},
		{fmt.Errorf("disk on fire"), ExitFailure},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestSuggest(t *testing.T) {
	names := []string{"Website", "Webshop", "API", "Mobile App", "Website"}

	require.Equal(t, []string{"Website"}, suggest("websit", names))
	require.Equal(t, []string{"Webshop"}, suggest("websho", names))
	require.Equal(t, []string{"API", "Apps"}, suggest("apix", []string{"Apps", "API"}))
	require.Equal(t, []string{"API"}, suggest("apu", names))
	require.Empty(t, suggest("infrastructure", names))

	require.Equal(t, ` (did you mean "Website" or "Webshop"?)`, didYouMean([]string{"Website", "Webshop"}))
	require.Empty(t, didYouMean(nil))
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "5,7", "9,"}, "session")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 5, 7, 9}, ids)

	_, err = parseIDs([]string{"3", "x"}, "session")
	require.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = parseID("0", "invoice")
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestParseItem(t *testing.T) {
	it, err := parseItem("Hosting: March|12|9.99")
	require.NoError(t, err)
	require.Equal(t, "Hosting: March", it.Description)
	require.Equal(t, "12", it.Quantity.String())
	require.Equal(t, int64(999), it.UnitPriceCents)

	for _, bad := range []string{"Hosting|12", "Hosting|many|9.99", "Hosting|1|9.999"} {
		_, err := parseItem(bad)
		require.ErrorIs(t, err, domain.ErrBadRequest, bad)
	}
}

func TestNeedsApp(t *testing.T) {
	require.True(t, NeedsApp(nil))
	require.True(t, NeedsApp([]string{"timer", "start", "Website"}))
	require.True(t, NeedsApp([]string{"bogus"}))
	require.False(t, NeedsApp([]string{"config", "path"}))
	require.False(t, NeedsApp([]string{"help", "timer"}))
	require.False(t, NeedsApp([]string{"invoices", "list", "--help"}))
}

// resetFlags undoes flag state left behind by a previous run of the shared
// command tree.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestBillingWorkflow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "tally.db")
	cfg.Log.Level = "error"
	a, err := app.Open(context.Background(), cfg, "pw")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	SetApp(a)

	require.Contains(t, mustRun(t, "clients", "add", "Acme", "--email", "ap@acme.test"), "Client created: Acme (ID: 1)")
	require.Contains(t, mustRun(t, "projects", "add", "acme", "Website", "--rate", "100"), "at $100.00/h")

	_, err = run(t, "projects", "add", "Acmee", "API", "--rate", "50")
	require.Equal(t, ExitNotFound, ExitCode(err))
	require.Contains(t, err.Error(), `did you mean "Acme"`)

	require.Contains(t, mustRun(t, "timer", "start", "Website", "homepage"), "Session 1 started on Website")
	_, err = run(t, "timer", "start", "acme/website")
	require.Equal(t, ExitConflict, ExitCode(err))

	require.Contains(t, mustRun(t, "timer", "status"), "homepage")
	require.Contains(t, mustRun(t, "timer", "stop"), "Session 1 stopped")
	require.Contains(t, mustRun(t, "timer", "status"), "No active session")

	out := mustRun(t, "invoices", "create", "Acme", "--item", "Design|2|80.00", "--tax", "10")
	require.Contains(t, out, "Draft invoice INV-0001 created for Acme: $176.00")

	out = mustRun(t, "invoices", "show", "INV-0001")
	require.Contains(t, out, "Design")
	require.Contains(t, out, "$16.00")

	out = mustRun(t, "payments", "add", "INV-0001", "100", "--reference", "wire-1")
	require.Contains(t, out, "Outstanding: $76.00")

	_, err = run(t, "payments", "add", "INV-0001", "80")
	require.Equal(t, ExitBadRequest, ExitCode(err))
	require.Contains(t, err.Error(), "76.00")

	out = mustRun(t, "payments", "add", "1", "76")
	require.Contains(t, out, "paid")

	out = mustRun(t, "payments", "list", "INV-0001")
	require.Contains(t, out, "wire-1")
	require.Contains(t, out, "outstanding $0.00")

	_, err = run(t, "invoices", "delete", "INV-0001", "--yes")
	require.Equal(t, ExitBadRequest, ExitCode(err))

	require.Contains(t, mustRun(t, "settings", "show"), "INV-0002")
}
