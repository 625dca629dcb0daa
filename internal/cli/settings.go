package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/andy/tally/internal/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change invoice numbering and defaults",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := appInstance.Settings.Get(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Invoice prefix:       %s\n", s.InvoicePrefix)
		fmt.Fprintf(out, "Next invoice number:  %d (%s)\n", s.NextInvoiceNumber, domain.FormatInvoiceNumber(s.InvoicePrefix, s.NextInvoiceNumber))
		fmt.Fprintf(out, "Currency:             %s\n", s.Currency)
		fmt.Fprintf(out, "Payment terms:        %d days\n", s.PaymentTermsDays)
		fmt.Fprintf(out, "Default tax rate:     %s%%\n", s.DefaultTaxRate.String())
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Long:  `Change settings. The next invoice number can only move forward.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.SettingsPatch
		flags := cmd.Flags()
		if flags.Changed("prefix") {
			v, _ := flags.GetString("prefix")
			patch.InvoicePrefix = &v
		}
		if flags.Changed("next-number") {
			v, _ := flags.GetInt64("next-number")
			patch.NextInvoiceNumber = &v
		}
		if flags.Changed("currency") {
			v, _ := flags.GetString("currency")
			patch.Currency = &v
		}
		if flags.Changed("terms") {
			v, _ := flags.GetInt("terms")
			patch.PaymentTermsDays = &v
		}
		if flags.Changed("tax") {
			v, _ := flags.GetString("tax")
			rate, err := decimal.NewFromString(v)
			if err != nil {
				return domain.BadRequestf("invalid tax rate %q", v)
			}
			patch.DefaultTaxRate = &rate
		}

		s, err := appInstance.Settings.Update(cmd.Context(), patch)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok("Settings saved; next invoice will be %s", domain.FormatInvoiceNumber(s.InvoicePrefix, s.NextInvoiceNumber)))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().String("prefix", "", "Invoice number prefix")
	settingsSetCmd.Flags().Int64("next-number", 0, "Next invoice number")
	settingsSetCmd.Flags().String("currency", "", "Three letter currency code")
	settingsSetCmd.Flags().Int("terms", 0, "Payment terms in days")
	settingsSetCmd.Flags().String("tax", "", "Default tax rate in percent")
}
