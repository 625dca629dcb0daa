package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
)

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Aliases: []string{"client"},
	Short:   "Manage clients",
	Long:    `List and add the clients you bill.`,
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		includeArchived, _ := cmd.Flags().GetBool("archived")

		clients, err := appInstance.Store.Repos().Clients.List(ctx, includeArchived)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(clients) == 0 {
			fmt.Fprintln(out, "No clients found")
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-5s %-30s %-30s %-10s", "ID", "Name", "Email", "Status")))
		fmt.Fprintln(out, rule(78))
		for _, c := range clients {
			status := "Active"
			if c.IsArchived {
				status = "Archived"
			}
			fmt.Fprintf(out, "%-5d %-30s %-30s %-10s\n", c.ID, truncate(c.Name, 30), truncate(c.Email, 30), status)
		}
		fmt.Fprintf(out, "\nTotal: %d client(s)\n", len(clients))
		return nil
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		notes, _ := cmd.Flags().GetString("notes")

		client := domain.NewClient(args[0], email, time.Now().UTC())
		client.Notes = notes
		if err := appInstance.Store.Repos().Clients.Create(cmd.Context(), client); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ok("Client created: %s (ID: %d)", client.Name, client.ID))
		return nil
	},
}

func init() {
	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsAddCmd)

	clientsListCmd.Flags().Bool("archived", false, "Include archived clients")

	clientsAddCmd.Flags().String("email", "", "Client email")
	clientsAddCmd.Flags().String("notes", "", "Notes about the client")
}
