package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
	"github.com/andy/tally/internal/service"
)

var invoicesCmd = &cobra.Command{
	Use:     "invoices",
	Aliases: []string{"invoice", "inv"},
	Short:   "Create and manage invoices",
}

// headerFromFlags reads the flags shared by both ways of creating an invoice.
func headerFromFlags(flags *pflag.FlagSet, clientID int64) (service.InvoiceHeader, error) {
	h := service.InvoiceHeader{ClientID: clientID}
	if v, _ := flags.GetString("issue"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return h, err
		}
		h.IssueDate = &t
	}
	if v, _ := flags.GetString("due"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return h, err
		}
		h.DueDate = &t
	}
	if v, _ := flags.GetString("tax"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return h, domain.BadRequestf("invalid tax rate %q", v)
		}
		h.TaxRate = &rate
	}
	h.Currency, _ = flags.GetString("currency")
	h.Notes, _ = flags.GetString("notes")
	h.Terms, _ = flags.GetString("terms")
	return h, nil
}

func addHeaderFlags(flags *pflag.FlagSet) {
	flags.String("issue", "", "Issue date (YYYY-MM-DD, default today)")
	flags.String("due", "", "Due date (YYYY-MM-DD, default issue date plus payment terms)")
	flags.String("tax", "", "Tax rate in percent, e.g. 8.25 (default from settings)")
	flags.String("currency", "", "Currency code (default from settings)")
	flags.String("notes", "", "Notes printed on the invoice")
	flags.String("terms", "", "Payment terms text")
}

// parseItem reads "description|quantity|unit price".
func parseItem(s string) (service.ItemInput, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return service.ItemInput{}, domain.BadRequestf("item %q must look like \"description|quantity|price\"", s)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return service.ItemInput{}, domain.BadRequestf("invalid quantity %q", parts[1])
	}
	price, err := domain.ParseCents(parts[2])
	if err != nil {
		return service.ItemInput{}, err
	}
	return service.ItemInput{Description: parts[0], Quantity: qty, UnitPriceCents: price}, nil
}

func printInvoice(ctx context.Context, out io.Writer, inv *domain.Invoice) {
	fmt.Fprintf(out, "%s  %s\n", headerStyle.Render(inv.InvoiceNumber), invoiceStatusLabel(inv.Status))
	fmt.Fprintf(out, "  Client: %s\n", clientName(ctx, inv.ClientID))
	fmt.Fprintf(out, "  Issued: %s   Due: %s", formatDate(inv.IssueDate), formatDate(inv.DueDate))
	if inv.PaidDate != nil {
		fmt.Fprintf(out, "   Paid: %s", formatDate(*inv.PaidDate))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  %-5s %-40s %10s %12s %12s\n", "Item", "Description", "Qty", "Unit", "Total")
	fmt.Fprintln(out, "  "+rule(83))
	for _, it := range inv.Items {
		fmt.Fprintf(out, "  %-5d %-40s %10s %12s %12s\n",
			it.ID, truncate(it.Description, 40), it.Quantity.StringFixed(2), money(it.UnitPriceCents), money(it.TotalCents))
	}
	fmt.Fprintln(out, "  "+rule(83))
	fmt.Fprintf(out, "  %70s %12s\n", "Subtotal", money(inv.SubtotalCents))
	fmt.Fprintf(out, "  %70s %12s\n", "Tax "+inv.TaxRate.String()+"%", money(inv.TaxAmountCents))
	fmt.Fprintf(out, "  %70s %12s\n", "Total "+inv.Currency, money(inv.TotalCents))

	if len(inv.Payments) > 0 {
		var paid int64
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Payments:")
		for _, p := range inv.Payments {
			fmt.Fprintf(out, "    #%-4d %s %12s  %-13s %s\n", p.ID, formatDate(p.PaymentDate), money(p.AmountCents), p.Method, p.Reference)
			paid += p.AmountCents
		}
		fmt.Fprintf(out, "  %70s %12s\n", "Outstanding", money(inv.TotalCents-paid))
	}
	if inv.Notes != "" {
		fmt.Fprintf(out, "\n  Notes: %s\n", inv.Notes)
	}
	if inv.Terms != "" {
		fmt.Fprintf(out, "  Terms: %s\n", inv.Terms)
	}
}

var invoicesCreateCmd = &cobra.Command{
	Use:   "create <client>",
	Short: "Create a draft invoice from manual items",
	Long: `Create a draft invoice from free-form items. Each --item is
"description|quantity|unit price", for example --item "Hosting|12|9.99".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := resolveClient(ctx, args[0])
		if err != nil {
			return err
		}
		h, err := headerFromFlags(cmd.Flags(), c.ID)
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetStringArray("item")
		items := make([]service.ItemInput, 0, len(raw))
		for _, r := range raw {
			it, err := parseItem(r)
			if err != nil {
				return err
			}
			items = append(items, it)
		}

		inv, err := appInstance.Invoices.CreateManual(ctx, service.ManualInvoiceInput{InvoiceHeader: h, Items: items})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Draft invoice %s created for %s: %s", inv.InvoiceNumber, c.Name, money(inv.TotalCents)))
		return nil
	},
}

var invoicesFromSessionsCmd = &cobra.Command{
	Use:   "from-sessions <client> [session_id...]",
	Short: "Bill stopped sessions on a new invoice",
	Long: `Create a draft invoice from stopped, billable, unbilled sessions of one client.
With no session IDs (or --all) every unbilled session of the client is used.
Either every session is billed or none is.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := resolveClient(ctx, args[0])
		if err != nil {
			return err
		}
		h, err := headerFromFlags(cmd.Flags(), c.ID)
		if err != nil {
			return err
		}

		ids, err := parseIDs(args[1:], "session")
		if err != nil {
			return err
		}
		if all, _ := cmd.Flags().GetBool("all"); all || len(ids) == 0 {
			unbilled, err := appInstance.Sessions.Unbilled(ctx, c.ID)
			if err != nil {
				return err
			}
			ids = ids[:0]
			for _, s := range unbilled {
				ids = append(ids, s.ID)
			}
		}
		group, _ := cmd.Flags().GetBool("group")

		inv, err := appInstance.Invoices.CreateFromSessions(ctx, service.SessionInvoiceInput{
			InvoiceHeader:  h,
			SessionIDs:     ids,
			GroupByProject: group,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Draft invoice %s created from %d session(s): %s",
			inv.InvoiceNumber, len(ids), money(inv.TotalCents)))
		return nil
	},
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var f repository.InvoiceFilter
		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := resolveClient(ctx, ref)
			if err != nil {
				return err
			}
			f.ClientID = &c.ID
		}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			st, err := domain.ParseInvoiceStatus(v)
			if err != nil {
				return err
			}
			f.Status = &st
		}

		invoices, err := appInstance.Invoices.List(ctx, f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(invoices) == 0 {
			fmt.Fprintln(out, "No invoices found")
			return nil
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-5s %-12s %-20s %-10s %-10s %12s  %s",
			"ID", "Number", "Client", "Issued", "Due", "Total", "Status")))
		fmt.Fprintln(out, rule(86))
		for _, inv := range invoices {
			fmt.Fprintf(out, "%-5d %-12s %-20s %-10s %-10s %12s  %s\n",
				inv.ID,
				inv.InvoiceNumber,
				truncate(clientName(ctx, inv.ClientID), 20),
				formatDate(inv.IssueDate),
				formatDate(inv.DueDate),
				money(inv.TotalCents),
				invoiceStatusLabel(inv.Status),
			)
		}
		fmt.Fprintf(out, "\nTotal: %d invoice(s)\n", len(invoices))
		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <invoice>",
	Short: "Show an invoice by ID or number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		printInvoice(ctx, cmd.OutOrStdout(), inv)
		return nil
	},
}

var invoicesDeleteCmd = &cobra.Command{
	Use:   "delete <invoice>",
	Short: "Delete an unpaid invoice without payments",
	Long:  `Delete an invoice. Sessions billed on it become unbilled again.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !confirmPrompt(fmt.Sprintf("Delete invoice %s?", inv.InvoiceNumber)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
		if err := appInstance.Invoices.Delete(ctx, inv.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Invoice %s deleted", inv.InvoiceNumber))
		return nil
	},
}

var invoicesStatusCmd = &cobra.Command{
	Use:   "status <invoice> <draft|sent|overdue|cancelled>",
	Short: "Change an invoice's status",
	Long:  `Change an invoice's status by hand. Invoices become paid only by recording payments.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		st, err := domain.ParseInvoiceStatus(args[1])
		if err != nil {
			return err
		}
		inv, err = appInstance.Invoices.UpdateStatus(ctx, inv.ID, st)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Invoice %s is now %s", inv.InvoiceNumber, inv.Status))
		return nil
	},
}

var invoicesOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Mark sent invoices past their due date as overdue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asOf := time.Now()
		if v, _ := cmd.Flags().GetString("as-of"); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return err
			}
			asOf = t
		}
		changed, err := appInstance.Invoices.MarkOverdue(ctx, asOf)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(changed) == 0 {
			fmt.Fprintln(out, "No invoices are overdue")
			return nil
		}
		for _, inv := range changed {
			fmt.Fprintln(out, ok("%s overdue since %s (%s)", inv.InvoiceNumber, formatDate(inv.DueDate), money(inv.TotalCents)))
		}
		return nil
	},
}

var invoicesItemCmd = &cobra.Command{
	Use:   "item",
	Short: "Add, edit or remove invoice items",
}

var invoicesItemAddCmd = &cobra.Command{
	Use:   "add <invoice> <description> <quantity> <unit_price>",
	Short: "Add a manual item",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		item, err := parseItem(strings.Join(args[1:], "|"))
		if err != nil {
			return err
		}
		inv, err = appInstance.Invoices.AddItem(ctx, inv.ID, item)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Item added; %s total is %s", inv.InvoiceNumber, money(inv.TotalCents)))
		return nil
	},
}

var invoicesItemEditCmd = &cobra.Command{
	Use:   "edit <invoice> <item_id>",
	Short: "Edit an item",
	Long:  `Edit an item. Items billed from sessions only accept a new description.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		itemID, err := parseID(args[1], "item")
		if err != nil {
			return err
		}

		var patch service.ItemPatch
		flags := cmd.Flags()
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			patch.Description = &v
		}
		if flags.Changed("quantity") {
			v, _ := flags.GetString("quantity")
			q, err := decimal.NewFromString(v)
			if err != nil {
				return domain.BadRequestf("invalid quantity %q", v)
			}
			patch.Quantity = &q
		}
		if flags.Changed("price") {
			v, _ := flags.GetString("price")
			cents, err := domain.ParseCents(v)
			if err != nil {
				return err
			}
			patch.UnitPriceCents = &cents
		}

		inv, err = appInstance.Invoices.UpdateItem(ctx, inv.ID, itemID, patch)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Item %d updated; %s total is %s", itemID, inv.InvoiceNumber, money(inv.TotalCents)))
		return nil
	},
}

var invoicesItemRmCmd = &cobra.Command{
	Use:   "rm <invoice> <item_id>",
	Short: "Remove an item and unbill its sessions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		itemID, err := parseID(args[1], "item")
		if err != nil {
			return err
		}
		inv, err = appInstance.Invoices.DeleteItem(ctx, inv.ID, itemID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Item %d removed; %s total is %s", itemID, inv.InvoiceNumber, money(inv.TotalCents)))
		return nil
	},
}

func init() {
	invoicesCmd.AddCommand(invoicesCreateCmd)
	invoicesCmd.AddCommand(invoicesFromSessionsCmd)
	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesDeleteCmd)
	invoicesCmd.AddCommand(invoicesStatusCmd)
	invoicesCmd.AddCommand(invoicesOverdueCmd)
	invoicesCmd.AddCommand(invoicesItemCmd)
	invoicesItemCmd.AddCommand(invoicesItemAddCmd)
	invoicesItemCmd.AddCommand(invoicesItemEditCmd)
	invoicesItemCmd.AddCommand(invoicesItemRmCmd)

	addHeaderFlags(invoicesCreateCmd.Flags())
	invoicesCreateCmd.Flags().StringArray("item", nil, `Item as "description|quantity|price" (repeatable)`)

	addHeaderFlags(invoicesFromSessionsCmd.Flags())
	invoicesFromSessionsCmd.Flags().Bool("all", false, "Bill every unbilled session of the client")
	invoicesFromSessionsCmd.Flags().Bool("group", false, "One item per project instead of one per session")

	invoicesListCmd.Flags().String("client", "", "Filter by client ID or name")
	invoicesListCmd.Flags().String("status", "", "Filter by status")

	invoicesDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	invoicesOverdueCmd.Flags().String("as-of", "", "Reference date (YYYY-MM-DD, default today)")

	invoicesItemEditCmd.Flags().String("description", "", "New description")
	invoicesItemEditCmd.Flags().String("quantity", "", "New quantity")
	invoicesItemEditCmd.Flags().String("price", "", "New unit price")
}
