package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/service"
)

var paymentsCmd = &cobra.Command{
	Use:     "payments",
	Aliases: []string{"payment", "pay"},
	Short:   "Record payments against invoices",
	Long: `Record, correct and remove payments. An invoice becomes paid once its
payments cover the total, and reverts when they no longer do.`,
}

var paymentsAddCmd = &cobra.Command{
	Use:   "add <invoice> <amount>",
	Short: "Record a payment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		amount, err := domain.ParseCents(args[1])
		if err != nil {
			return err
		}

		in := service.PaymentInput{InvoiceID: inv.ID, AmountCents: amount}
		flags := cmd.Flags()
		if v, _ := flags.GetString("date"); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return err
			}
			in.PaymentDate = &t
		}
		method, _ := flags.GetString("method")
		if in.Method, err = domain.ParsePaymentMethod(method); err != nil {
			return err
		}
		in.Reference, _ = flags.GetString("reference")
		in.Notes, _ = flags.GetString("notes")

		p, err := appInstance.Payments.Create(ctx, in)
		if err != nil {
			return err
		}
		bal, err := appInstance.Payments.Balance(ctx, inv.ID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ok("Payment %d of %s recorded on %s (%s)", p.ID, money(p.AmountCents), inv.InvoiceNumber, p.Reference))
		fmt.Fprintf(out, "  Outstanding: %s, status %s\n", money(bal.OutstandingCents), invoiceStatusLabel(bal.Status))
		return nil
	},
}

var paymentsEditCmd = &cobra.Command{
	Use:   "edit <payment_id>",
	Short: "Correct a payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "payment")
		if err != nil {
			return err
		}

		var patch domain.PaymentPatch
		flags := cmd.Flags()
		if flags.Changed("amount") {
			v, _ := flags.GetString("amount")
			cents, err := domain.ParseCents(v)
			if err != nil {
				return err
			}
			patch.AmountCents = &cents
		}
		if flags.Changed("date") {
			v, _ := flags.GetString("date")
			t, err := parseDate(v)
			if err != nil {
				return err
			}
			patch.PaymentDate = &t
		}
		if flags.Changed("method") {
			v, _ := flags.GetString("method")
			m, err := domain.ParsePaymentMethod(v)
			if err != nil {
				return err
			}
			patch.Method = &m
		}
		if flags.Changed("reference") {
			v, _ := flags.GetString("reference")
			patch.Reference = &v
		}
		if flags.Changed("notes") {
			v, _ := flags.GetString("notes")
			patch.Notes = &v
		}

		p, err := appInstance.Payments.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Payment %d updated: %s", p.ID, money(p.AmountCents)))
		return nil
	},
}

var paymentsRmCmd = &cobra.Command{
	Use:   "rm <payment_id>",
	Short: "Remove a payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0], "payment")
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !confirmPrompt(fmt.Sprintf("Remove payment %d?", id)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
		if err := appInstance.Payments.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Payment %d removed", id))
		return nil
	},
}

var paymentsListCmd = &cobra.Command{
	Use:   "list <invoice>",
	Short: "List payments and the balance of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inv, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return err
		}
		payments, err := appInstance.Payments.List(ctx, inv.ID)
		if err != nil {
			return err
		}
		bal, err := appInstance.Payments.Balance(ctx, inv.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(payments) == 0 {
			fmt.Fprintf(out, "No payments recorded on %s\n", inv.InvoiceNumber)
		} else {
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-5s %-10s %12s  %-13s %s", "ID", "Date", "Amount", "Method", "Reference")))
			fmt.Fprintln(out, rule(70))
			for _, p := range payments {
				fmt.Fprintf(out, "%-5d %-10s %12s  %-13s %s\n", p.ID, formatDate(p.PaymentDate), money(p.AmountCents), p.Method, p.Reference)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Total %s, paid %s, outstanding %s (%s)\n",
			money(bal.TotalCents), money(bal.PaidCents), money(bal.OutstandingCents), invoiceStatusLabel(bal.Status))
		return nil
	},
}

func init() {
	paymentsCmd.AddCommand(paymentsAddCmd)
	paymentsCmd.AddCommand(paymentsEditCmd)
	paymentsCmd.AddCommand(paymentsRmCmd)
	paymentsCmd.AddCommand(paymentsListCmd)

	paymentsAddCmd.Flags().String("date", "", "Payment date (YYYY-MM-DD, default today)")
	paymentsAddCmd.Flags().String("method", "bank_transfer", "bank_transfer, cash, card, check, paypal or other")
	paymentsAddCmd.Flags().String("reference", "", "Bank or transaction reference (generated when empty)")
	paymentsAddCmd.Flags().String("notes", "", "Notes")

	paymentsEditCmd.Flags().String("amount", "", "New amount")
	paymentsEditCmd.Flags().String("date", "", "New payment date")
	paymentsEditCmd.Flags().String("method", "", "New method")
	paymentsEditCmd.Flags().String("reference", "", "New reference")
	paymentsEditCmd.Flags().String("notes", "", "New notes")

	paymentsRmCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
}
