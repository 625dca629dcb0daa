package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session", "s"},
	Short:   "List and correct time sessions",
}

func printSessions(ctx context.Context, out io.Writer, sessions []*domain.TimeSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-6s %-10s %-20s %-16s %-9s %-10s %-12s %s",
		"ID", "Date", "Project", "Description", "Status", "Duration", "Amount", "Billed")))
	fmt.Fprintln(out, rule(100))

	var total int64
	for _, s := range sessions {
		billed := "-"
		switch {
		case s.IsBilled():
			billed = fmt.Sprintf("item %d", *s.InvoiceItemID)
		case !s.IsBillable:
			billed = "no-bill"
		}
		fmt.Fprintf(out, "%-6d %-10s %-20s %-16s %-9s %-10s %-12s %s\n",
			s.ID,
			formatDate(s.StartTime.Local()),
			truncate(projectName(ctx, s.ProjectID), 20),
			truncate(s.Description, 16),
			s.Status,
			formatSeconds(s.Duration()),
			money(s.Amount()),
			billed,
		)
		total += s.Amount()
	}
	fmt.Fprintf(out, "\n%d session(s), %s\n", len(sessions), money(total))
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var f repository.SessionFilter

		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := resolveClient(ctx, ref)
			if err != nil {
				return err
			}
			f.ClientID = &c.ID
		}
		if ref, _ := cmd.Flags().GetString("project"); ref != "" {
			p, err := resolveProject(ctx, ref)
			if err != nil {
				return err
			}
			f.ProjectID = &p.ID
		}
		if cmd.Flags().Changed("status") {
			v, _ := cmd.Flags().GetString("status")
			st := domain.SessionStatus(v)
			if !st.Valid() {
				return domain.BadRequestf("unknown session status %q", v)
			}
			f.Status = &st
		}
		if unbilled, _ := cmd.Flags().GetBool("unbilled"); unbilled {
			no := false
			f.Billed = &no
		}
		if v, _ := cmd.Flags().GetString("from"); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return err
			}
			f.From = &t
		}
		if v, _ := cmd.Flags().GetString("to"); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return err
			}
			// inclusive of the whole day
			end := t.AddDate(0, 0, 1)
			f.To = &end
		}

		sessions, err := appInstance.Sessions.List(ctx, f)
		if err != nil {
			return err
		}
		printSessions(ctx, cmd.OutOrStdout(), sessions)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "session")
		if err != nil {
			return err
		}
		s, err := appInstance.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %d: %s\n", s.ID, statusLabel(s.Status))
		fmt.Fprintf(out, "  Project: %s (%s)\n", projectName(ctx, s.ProjectID), clientName(ctx, s.ClientID))
		fmt.Fprintf(out, "  Description: %s\n", s.Description)
		if s.Notes != "" {
			fmt.Fprintf(out, "  Notes: %s\n", s.Notes)
		}
		fmt.Fprintf(out, "  Started: %s\n", s.StartTime.Local().Format("2006-01-02 15:04:05"))
		if s.EndTime != nil {
			fmt.Fprintf(out, "  Stopped: %s\n", s.EndTime.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "  Rate: %s/h\n", money(s.HourlyRateCents))
		if s.Status == domain.SessionStopped {
			fmt.Fprintf(out, "  Duration: %s\n", formatSeconds(s.Duration()))
			fmt.Fprintf(out, "  Amount: %s\n", money(s.Amount()))
		}
		fmt.Fprintf(out, "  Billable: %t\n", s.IsBillable)
		if s.IsBilled() {
			fmt.Fprintf(out, "  Billed: invoice item %d on %s\n", *s.InvoiceItemID, formatDate(*s.BilledAt))
		}
		return nil
	},
}

var sessionsEditCmd = &cobra.Command{
	Use:   "edit <session_id>",
	Short: "Correct an unbilled, non-running session",
	Long: `Correct a session's description, notes, rate, duration or billable flag.
A new rate or duration recomputes the amount. Every change is recorded in the
session history with the given reason.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "session")
		if err != nil {
			return err
		}

		var patch domain.SessionPatch
		flags := cmd.Flags()
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			patch.Description = &v
		}
		if flags.Changed("notes") {
			v, _ := flags.GetString("notes")
			patch.Notes = &v
		}
		if flags.Changed("rate") {
			v, _ := flags.GetString("rate")
			cents, err := domain.ParseCents(v)
			if err != nil {
				return err
			}
			patch.HourlyRateCents = &cents
		}
		if flags.Changed("duration") {
			v, _ := flags.GetDuration("duration")
			secs := int64(v / time.Second)
			patch.DurationSeconds = &secs
		}
		if flags.Changed("billable") {
			v, _ := flags.GetBool("billable")
			patch.IsBillable = &v
		}
		reason, _ := flags.GetString("reason")

		s, err := appInstance.Sessions.Update(ctx, id, patch, reason)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Session %d updated: %s, %s", s.ID, formatSeconds(s.Duration()), money(s.Amount())))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session_id>",
	Short: "Delete an unbilled session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "session")
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !confirmPrompt(fmt.Sprintf("Delete session %d?", id)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
		if err := appInstance.Sessions.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Session %d deleted", id))
		return nil
	},
}

var sessionsBulkCmd = &cobra.Command{
	Use:   "bulk <session_id>...",
	Short: "Change rate or billable flag on several sessions at once",
	Long:  `Apply the same rate or billable change to every listed session, or to none of them.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ids, err := parseIDs(args, "session")
		if err != nil {
			return err
		}

		var patch domain.BulkSessionPatch
		if cmd.Flags().Changed("rate") {
			v, _ := cmd.Flags().GetString("rate")
			cents, err := domain.ParseCents(v)
			if err != nil {
				return err
			}
			patch.HourlyRateCents = &cents
		}
		if cmd.Flags().Changed("billable") {
			v, _ := cmd.Flags().GetBool("billable")
			patch.IsBillable = &v
		}
		reason, _ := cmd.Flags().GetString("reason")

		sessions, err := appInstance.Sessions.BulkUpdate(ctx, ids, patch, reason)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("%d session(s) updated", len(sessions)))
		return nil
	},
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history <session_id>",
	Short: "Show the edit history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "session")
		if err != nil {
			return err
		}
		history, err := appInstance.Sessions.History(ctx, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(history) == 0 {
			fmt.Fprintln(out, "No changes recorded")
			return nil
		}
		for _, h := range history {
			line := fmt.Sprintf("%s  %-22s %s -> %s",
				h.ChangedAt.Local().Format("2006-01-02 15:04"), h.FieldName, h.OldValue, h.NewValue)
			if h.ChangeReason != "" {
				line += mutedStyle.Render("  (" + h.ChangeReason + ")")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var sessionsUnbilledCmd = &cobra.Command{
	Use:   "unbilled <client>",
	Short: "List stopped, billable sessions not yet invoiced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := resolveClient(ctx, args[0])
		if err != nil {
			return err
		}
		sessions, err := appInstance.Sessions.Unbilled(ctx, c.ID)
		if err != nil {
			return err
		}
		printSessions(ctx, cmd.OutOrStdout(), sessions)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsEditCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsBulkCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
	sessionsCmd.AddCommand(sessionsUnbilledCmd)

	sessionsListCmd.Flags().String("client", "", "Filter by client ID or name")
	sessionsListCmd.Flags().String("project", "", "Filter by project ID, name or client/project")
	sessionsListCmd.Flags().String("status", "", "Filter by status (running, paused, stopped)")
	sessionsListCmd.Flags().Bool("unbilled", false, "Only sessions not yet on an invoice")
	sessionsListCmd.Flags().String("from", "", "Sessions started on or after this date (YYYY-MM-DD)")
	sessionsListCmd.Flags().String("to", "", "Sessions started on or before this date (YYYY-MM-DD)")

	sessionsEditCmd.Flags().String("description", "", "New description")
	sessionsEditCmd.Flags().String("notes", "", "New notes")
	sessionsEditCmd.Flags().String("rate", "", "New hourly rate, e.g. 95.00")
	sessionsEditCmd.Flags().Duration("duration", 0, "New billed duration, e.g. 1h30m")
	sessionsEditCmd.Flags().Bool("billable", true, "Whether the session is billable")
	sessionsEditCmd.Flags().String("reason", "", "Why the change was made")

	sessionsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	sessionsBulkCmd.Flags().String("rate", "", "New hourly rate for every session")
	sessionsBulkCmd.Flags().Bool("billable", true, "Billable flag for every session")
	sessionsBulkCmd.Flags().String("reason", "", "Why the change was made")
}
