package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete data from the database",
	Long: `Delete data from the database. Settings and the invoice counter are kept.

Examples:
  tally reset invoices    # Delete invoices and payments, unbill all sessions
  tally reset sessions    # Delete sessions, invoices and payments
  tally reset all         # Also delete clients and projects`,
}

// Order matters: children before parents.
var (
	invoiceTables = []string{"payments", "invoice_items", "invoices"}
	sessionTables = []string{"session_history", "time_sessions"}
	clientTables  = []string{"projects", "clients"}
)

func wipe(ctx context.Context, tables ...[]string) error {
	err := appInstance.DB.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE time_sessions SET invoice_item_id = NULL, billed_at = NULL WHERE invoice_item_id IS NOT NULL"); err != nil {
			return fmt.Errorf("failed to unbill sessions: %w", err)
		}
		for _, group := range tables {
			for _, table := range group {
				if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
					return fmt.Errorf("failed to clear %s: %w", table, err)
				}
			}
		}
		return nil
	})
	if db.IsBusy(err) {
		return domain.Conflictf("database is busy, try again: %v", err)
	}
	return err
}

func resetCommand(use, short, prompt, done string, tables ...[]string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if yes, _ := cmd.Flags().GetBool("yes"); !yes && !confirmPrompt(prompt) {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
			if err := wipe(cmd.Context(), tables...); err != nil {
				return err
			}
			fmt.Fprintln(out, done)
			return nil
		},
	}
}

var confirmIn io.Reader = os.Stdin

func confirmPrompt(message string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", message)
	reader := bufio.NewReader(confirmIn)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func init() {
	resetCmd.AddCommand(resetCommand("invoices",
		"Delete all invoices and payments and unbill sessions",
		"This will delete ALL invoices and payments. Continue?",
		"All invoices and payments have been deleted and sessions unbilled.",
		invoiceTables))
	resetCmd.AddCommand(resetCommand("sessions",
		"Delete all sessions, invoices and payments",
		"This will delete ALL sessions, invoices and payments. Continue?",
		"All sessions, invoices and payments have been deleted.",
		invoiceTables, sessionTables))
	resetCmd.AddCommand(resetCommand("all",
		"Delete ALL data except settings",
		"This will delete ALL data (clients, projects, sessions, invoices, payments). Continue?",
		"All data has been deleted.",
		invoiceTables, sessionTables, clientTables))

	for _, c := range resetCmd.Commands() {
		c.Flags().BoolP("yes", "y", false, "Skip confirmation")
	}
}
