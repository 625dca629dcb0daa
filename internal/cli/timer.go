package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/tui"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the active time session",
	Long: `Start, pause, resume or stop the single active time session.

Only one session may be running or paused at a time.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start <project> [description...]",
	Short: "Start a session against a project",
	Long: `Start a running session. The project's hourly rate is captured at start.

The project may be given by ID, by name, or as client/project.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		project, err := resolveProject(ctx, args[0])
		if err != nil {
			return err
		}
		noBill, _ := cmd.Flags().GetBool("non-billable")
		description := strings.Join(args[1:], " ")

		s, err := appInstance.Sessions.Start(ctx, project.ID, description, !noBill)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ok("Session %d started on %s", s.ID, project.Name))
		fmt.Fprintf(out, "  Rate: %s/h\n", money(s.HourlyRateCents))
		if s.Description != "" {
			fmt.Fprintf(out, "  Description: %s\n", s.Description)
		}
		return nil
	},
}

// activeOrArg returns the session named by args, or the active session.
func activeOrArg(ctx context.Context, args []string) (int64, error) {
	if len(args) == 1 {
		return parseID(args[0], "session")
	}
	active, err := appInstance.Sessions.Active(ctx)
	if err != nil {
		return 0, err
	}
	if active == nil {
		return 0, domain.NotFoundf("no active time session")
	}
	return active.Session.ID, nil
}

func transitionCmd(use, short, verb string, fn func(ctx context.Context, id int64) (*domain.TimeSession, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [session_id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := activeOrArg(ctx, args)
			if err != nil {
				return err
			}
			s, err := fn(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ok("Session %d %s", s.ID, verb))
			if s.Status == domain.SessionStopped {
				fmt.Fprintf(out, "  Duration: %s (elapsed %s)\n", formatSeconds(s.Duration()), formatSeconds(s.Elapsed(*s.EndTime)))
				fmt.Fprintf(out, "  Amount: %s\n", money(s.Amount()))
			}
			return nil
		},
	}
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		active, err := appInstance.Sessions.Active(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if active == nil {
			fmt.Fprintln(out, "No active session")
			return nil
		}

		s := active.Session
		fmt.Fprintf(out, "Session %d: %s\n", s.ID, statusLabel(s.Status))
		fmt.Fprintf(out, "  Project: %s (%s)\n", active.Project.Name, clientName(ctx, s.ClientID))
		if s.Description != "" {
			fmt.Fprintf(out, "  Description: %s\n", s.Description)
		}
		fmt.Fprintf(out, "  Started: %s\n", s.StartTime.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Elapsed: %s\n", formatSeconds(active.ElapsedSeconds))
		fmt.Fprintf(out, "  If stopped now: %s, %s\n",
			formatSeconds(active.ProjectedDurationSeconds), money(active.ProjectedAmountCents))
		return nil
	},
}

var timerWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live timer view",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func runWatch(ctx context.Context) error {
	return tui.RunWatch(ctx, appInstance.Sessions, appInstance.Config.TUI.ResyncInterval)
}

func init() {
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(transitionCmd("pause", "Pause the running session", "paused", func(ctx context.Context, id int64) (*domain.TimeSession, error) {
		return appInstance.Sessions.Pause(ctx, id)
	}))
	timerCmd.AddCommand(transitionCmd("resume", "Resume a paused session", "resumed", func(ctx context.Context, id int64) (*domain.TimeSession, error) {
		return appInstance.Sessions.Resume(ctx, id)
	}))
	timerCmd.AddCommand(transitionCmd("stop", "Stop the active session and fix its amount", "stopped", func(ctx context.Context, id int64) (*domain.TimeSession, error) {
		return appInstance.Sessions.Stop(ctx, id)
	}))
	timerCmd.AddCommand(timerStatusCmd)
	timerCmd.AddCommand(timerWatchCmd)

	timerStartCmd.Flags().Bool("non-billable", false, "Track the session without billing it")
}
