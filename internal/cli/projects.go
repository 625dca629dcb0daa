package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project", "p"},
	Short:   "Manage projects and their hourly rates",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var clientID *int64
		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := resolveClient(ctx, ref)
			if err != nil {
				return err
			}
			clientID = &c.ID
		}
		includeArchived, _ := cmd.Flags().GetBool("archived")

		projects, err := appInstance.Store.Repos().Projects.List(ctx, clientID, includeArchived)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects found")
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-5s %-25s %-25s %12s  %s", "ID", "Project", "Client", "Rate", "Status")))
		fmt.Fprintln(out, rule(80))
		for _, p := range projects {
			status := "Active"
			switch {
			case p.IsArchived:
				status = "Archived"
			case !p.IsActive:
				status = "Inactive"
			}
			fmt.Fprintf(out, "%-5d %-25s %-25s %12s  %s\n",
				p.ID,
				truncate(p.Name, 25),
				truncate(clientName(ctx, p.ClientID), 25),
				money(p.DefaultHourlyRateCents)+"/h",
				status,
			)
		}
		fmt.Fprintf(out, "\nTotal: %d project(s)\n", len(projects))
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <client> <name>",
	Short: "Add a project under a client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := resolveClient(ctx, args[0])
		if err != nil {
			return err
		}
		rateStr, _ := cmd.Flags().GetString("rate")
		rate, err := domain.ParseCents(rateStr)
		if err != nil {
			return err
		}

		p := domain.NewProject(c.ID, args[1], rate, time.Now().UTC())
		if err := appInstance.Store.Repos().Projects.Create(ctx, p); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Project created: %s for %s at %s/h (ID: %d)", p.Name, c.Name, money(rate), p.ID))
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)

	projectsListCmd.Flags().String("client", "", "Only projects of this client")
	projectsListCmd.Flags().Bool("archived", false, "Include archived projects")

	projectsAddCmd.Flags().String("rate", "", "Default hourly rate, e.g. 95.00 (required)")
	_ = projectsAddCmd.MarkFlagRequired("rate")
}
