package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
	"github.com/lherron/partymerge/internal/store"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Manage party addresses",
}

var addressAddCmd = &cobra.Command{
	Use:   "add <party>",
	Short: "Add an address to a party",
	Long: `Add an address to an active party.

Examples:
  partymerge address add PTY-00001 --street "1 Main St" --city Lyon --zip 69001
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runAddressAdd),
}

var addressLsCmd = &cobra.Command{
	Use:   "ls <party>",
	Short: "List a party's addresses",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runAddressLs),
}

var (
	addressName    string
	addressStreet  string
	addressCity    string
	addressZip     string
	addressCountry string
)

func init() {
	rootCmd.AddCommand(addressCmd)
	addressCmd.AddCommand(addressAddCmd, addressLsCmd)

	addressAddCmd.Flags().StringVar(&addressName, "name", "", "Contact name")
	addressAddCmd.Flags().StringVar(&addressStreet, "street", "", "Street")
	addressAddCmd.Flags().StringVar(&addressCity, "city", "", "City")
	addressAddCmd.Flags().StringVar(&addressZip, "zip", "", "Postal code")
	addressAddCmd.Flags().StringVar(&addressCountry, "country", "", "Country")
}

func runAddressAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	partyID, err := app.Store.Parties.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	address, err := app.Store.Addresses.Create(cmd.Context(), app.Actor, store.AddressCreateParams{
		PartyID: partyID,
		Name:    optionalFlag(addressName),
		Street:  optionalFlag(addressStreet),
		City:    optionalFlag(addressCity),
		Zip:     optionalFlag(addressZip),
		Country: optionalFlag(addressCountry),
	})
	if err != nil {
		return err
	}

	r := app.Renderer(cmd)
	if r.Format() == render.FormatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "Added address #%d to %s\n", address.ID, id.FormatParty(partyID))
		return nil
	}
	return r.Render(address, addressHeaders, addressRows([]domain.Address{*address}))
}

func runAddressLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	partyID, err := resolveAnyParty(app, cmd, args[0])
	if err != nil {
		return err
	}
	addresses, err := app.Store.Addresses.ListForParty(cmd.Context(), partyID)
	if err != nil {
		return err
	}
	return app.Renderer(cmd).Render(addresses, addressHeaders, addressRows(addresses))
}

var addressHeaders = []string{"ID", "PARTY", "NAME", "STREET", "CITY", "ZIP", "COUNTRY"}

func addressRows(addresses []domain.Address) [][]string {
	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			id.FormatParty(a.PartyID),
			render.Optional(a.Name),
			render.Optional(a.Street),
			render.Optional(a.City),
			render.Optional(a.Zip),
			render.Optional(a.Country),
		})
	}
	return rows
}
