package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/app"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Time tracking and invoicing for freelancers",
	Long: `Tally tracks billable time against client projects, turns it into invoices
and reconciles the payments you receive.

Running tally without arguments opens the live timer view.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

// ExecuteContext runs the root command with ctx available to every subcommand
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

// NeedsApp reports whether running args requires an open database. Help,
// completion and config commands work without one.
func NeedsApp(args []string) bool {
	if len(args) > 0 && (args[0] == "help" || args[0] == "completion") {
		return false
	}
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return false
		}
	}
	cmd, _, err := rootCmd.Find(args)
	if err != nil || cmd == nil {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noAppAnnotation] == "true" {
			return false
		}
	}
	return true
}

const noAppAnnotation = "tally/no-app"

func init() {
	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(paymentsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(configCmd)
}
