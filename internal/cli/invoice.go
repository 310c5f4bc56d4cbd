package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
	"github.com/lherron/partymerge/internal/store"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Manage invoices",
}

var invoiceAddCmd = &cobra.Command{
	Use:   "add <party>",
	Short: "Create a draft invoice for a party",
	Long: `Create a draft invoice. The number defaults to the next INV-NNNNN.

Examples:
  partymerge invoice add PTY-00001 --amount 125.50
  partymerge invoice add Acme --amount 10 --address 3 --number 2025-001
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runInvoiceAdd),
}

var invoicePostCmd = &cobra.Command{
	Use:   "post <invoice-id>",
	Short: "Post a draft invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runInvoicePost),
}

var invoiceLsCmd = &cobra.Command{
	Use:   "ls <party>",
	Short: "List a party's invoices",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runInvoiceLs),
}

var (
	invoiceAmount    string
	invoiceNumber    string
	invoiceAddressID int64
	invoiceLsState   string
)

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceAddCmd, invoicePostCmd, invoiceLsCmd)

	invoiceAddCmd.Flags().StringVar(&invoiceAmount, "amount", "0", "Amount, e.g. 125.50")
	invoiceAddCmd.Flags().StringVar(&invoiceNumber, "number", "", "Invoice number (default: next INV-NNNNN)")
	invoiceAddCmd.Flags().Int64Var(&invoiceAddressID, "address", 0, "Invoice address id")

	invoiceLsCmd.Flags().StringVar(&invoiceLsState, "state", "", "Only show invoices in this state (draft, posted)")
}

// parseAmount converts a decimal amount to cents.
func parseAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(f * 100)), nil
}

func runInvoiceAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	partyID, err := app.Store.Parties.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cents, err := parseAmount(invoiceAmount)
	if err != nil {
		return err
	}

	params := store.InvoiceCreateParams{
		Number:      invoiceNumber,
		PartyID:     partyID,
		AmountCents: cents,
	}
	if invoiceAddressID > 0 {
		params.InvoiceAddressID = &invoiceAddressID
	}

	invoice, err := app.Store.Invoices.Create(cmd.Context(), app.Actor, params)
	if err != nil {
		return err
	}

	r := app.Renderer(cmd)
	if r.Format() == render.FormatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "Created invoice %s (#%d) for %s: %s\n",
			invoice.Number, invoice.ID, id.FormatParty(partyID), invoice.FormatAmount())
		return nil
	}
	return r.Render(invoice, invoiceHeaders, invoiceRows([]domain.Invoice{*invoice}))
}

func runInvoicePost(app *appctx.App, cmd *cobra.Command, args []string) error {
	invoiceID, err := parsePositiveID("invoice", args[0])
	if err != nil {
		return err
	}
	invoice, err := app.Store.Invoices.Post(cmd.Context(), app.Actor, invoiceID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Posted invoice %s\n", invoice.Number)
	return nil
}

func runInvoiceLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	if invoiceLsState != "" {
		if err := domain.ValidateInvoiceState(invoiceLsState); err != nil {
			return err
		}
	}
	partyID, err := resolveAnyParty(app, cmd, args[0])
	if err != nil {
		return err
	}
	all, err := app.Store.Invoices.ListForParty(cmd.Context(), partyID)
	if err != nil {
		return err
	}

	invoices := all[:0]
	for _, inv := range all {
		if invoiceLsState == "" || string(inv.State) == invoiceLsState {
			invoices = append(invoices, inv)
		}
	}
	return app.Renderer(cmd).Render(invoices, invoiceHeaders, invoiceRows(invoices))
}

var invoiceHeaders = []string{"ID", "NUMBER", "PARTY", "STATE", "AMOUNT", "POSTED"}

func invoiceRows(invoices []domain.Invoice) [][]string {
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			strconv.FormatInt(inv.ID, 10),
			inv.Number,
			id.FormatParty(inv.PartyID),
			string(inv.State),
			inv.FormatAmount(),
			render.Optional(inv.PostedAt),
		})
	}
	return rows
}
