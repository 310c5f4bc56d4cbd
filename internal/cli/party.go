package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/cursor"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
	"github.com/lherron/partymerge/internal/store"
)

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Create and inspect parties",
}

var partyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a party",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runPartyCreate),
}

var partyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List parties",
	Long: `List active parties. Inactive parties, such as soft-merged duplicates,
are shown with --all.

With --limit, a full page prints the cursor of the next page on stderr;
pass it back with --cursor.

Examples:
  partymerge party ls
  partymerge party ls -q acme --all -o json
  partymerge party ls --sort name --limit 20 --cursor <cursor>
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPartyLs),
}

var partyShowCmd = &cobra.Command{
	Use:   "show <party>",
	Short: "Show a party with its addresses, invoices and categories",
	Long: `Show a party. The party may be given as PTY-00042, 42, or its exact name.
Inactive parties can only be shown by identity.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPartyShow),
}

var partyHistoryCmd = &cobra.Command{
	Use:   "history <party>",
	Short: "Show the recorded versions of a party",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runPartyHistory),
}

var partyUpdateCmd = &cobra.Command{
	Use:   "update <party>",
	Short: "Update a party's name, email or phone",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runPartyUpdate),
}

var (
	partyEmail string
	partyPhone string
	partyName  string

	partyLsAll   bool
	partyLsQuery string
	partyLsLimit  int
	partyLsSort   string
	partyLsCursor string
)

func init() {
	rootCmd.AddCommand(partyCmd)
	partyCmd.AddCommand(partyCreateCmd, partyLsCmd, partyShowCmd, partyHistoryCmd, partyUpdateCmd)

	partyCreateCmd.Flags().StringVar(&partyEmail, "email", "", "Email address")
	partyCreateCmd.Flags().StringVar(&partyPhone, "phone", "", "Phone number")

	partyUpdateCmd.Flags().StringVar(&partyName, "name", "", "New name")
	partyUpdateCmd.Flags().StringVar(&partyEmail, "email", "", "New email address")
	partyUpdateCmd.Flags().StringVar(&partyPhone, "phone", "", "New phone number")

	partyLsCmd.Flags().BoolVarP(&partyLsAll, "all", "a", false, "Include inactive parties")
	partyLsCmd.Flags().StringVarP(&partyLsQuery, "query", "q", "", "Filter by name or email substring")
	partyLsCmd.Flags().IntVar(&partyLsLimit, "limit", 0, "Maximum number of parties (0 = no limit)")
	partyLsCmd.Flags().StringVar(&partyLsSort, "sort", "id", "Order by id or name")
	partyLsCmd.Flags().StringVar(&partyLsCursor, "cursor", "", "Resume after a previous page")
}

func runPartyCreate(app *appctx.App, cmd *cobra.Command, args []string) error {
	party, err := app.Store.Parties.Create(cmd.Context(), app.Actor, args[0], optionalFlag(partyEmail), optionalFlag(partyPhone))
	if err != nil {
		return err
	}

	r := app.Renderer(cmd)
	if r.Format() == render.FormatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "Created party %s: %s\n", id.FormatParty(party.ID), party.DisplayName)
		return nil
	}
	return r.Render(party, partyHeaders, partyRows([]domain.Party{*party}))
}

func runPartyLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	opts := store.PartyListOptions{
		IncludeInactive: partyLsAll,
		Query:           partyLsQuery,
		Limit:           partyLsLimit,
		Sort:            partyLsSort,
	}
	if partyLsCursor != "" {
		after, err := cursor.Decode(partyLsCursor)
		if err != nil {
			return err
		}
		opts.After = after
	}

	parties, err := app.Store.Parties.List(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if err := app.Renderer(cmd).Render(parties, partyHeaders, partyRows(parties)); err != nil {
		return err
	}

	next, err := opts.NextCursor(parties)
	if err != nil || next == nil {
		return err
	}
	encoded, err := next.Encode()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Next page: --cursor %s\n", encoded)
	return nil
}

// showParty is the rendering of one party and the records pointing at it.
type showParty struct {
	domain.Party `yaml:",inline"`
	Addresses    []domain.Address  `json:"addresses" yaml:"addresses"`
	Invoices     []domain.Invoice  `json:"invoices" yaml:"invoices"`
	Categories   []domain.Category `json:"categories" yaml:"categories"`
}

func loadShowParty(app *appctx.App, cmd *cobra.Command, selector string) (*showParty, error) {
	ctx := cmd.Context()

	partyID, err := resolveAnyParty(app, cmd, selector)
	if err != nil {
		return nil, err
	}
	party, err := app.Store.Parties.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}

	out := &showParty{Party: *party}
	if out.Addresses, err = app.Store.Addresses.ListForParty(ctx, partyID); err != nil {
		return nil, err
	}
	if out.Invoices, err = app.Store.Invoices.ListForParty(ctx, partyID); err != nil {
		return nil, err
	}
	if out.Categories, err = app.Store.Categories.ListForParty(ctx, partyID); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveAnyParty accepts an identity for inactive parties too; names and
// codes of inactive parties go through the selector and are not found.
func resolveAnyParty(app *appctx.App, cmd *cobra.Command, selector string) (int64, error) {
	if partyID, err := id.ParseParty(selector); err == nil {
		return partyID, nil
	}
	return app.Store.Parties.Resolve(cmd.Context(), selector)
}

func runPartyShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	detail, err := loadShowParty(app, cmd, args[0])
	if err != nil {
		return err
	}

	r := app.Renderer(cmd)
	if r.Format() != render.FormatTable && r.Format() != render.FormatTSV {
		return r.Render(detail, nil, nil)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", id.FormatParty(detail.ID))
	fmt.Fprintf(out, "name:     %s\n", detail.DisplayName)
	fmt.Fprintf(out, "email:    %s\n", render.Optional(detail.Email))
	fmt.Fprintf(out, "phone:    %s\n", render.Optional(detail.Phone))
	fmt.Fprintf(out, "active:   %t\n", detail.Active)
	fmt.Fprintf(out, "created:  %s\n", detail.CreateDate)
	fmt.Fprintf(out, "updated:  %s\n", detail.WriteDate)

	if len(detail.Addresses) > 0 {
		fmt.Fprintln(out, "\naddresses:")
		for _, a := range detail.Addresses {
			fmt.Fprintf(out, "  #%d %s, %s %s\n", a.ID, render.Optional(a.Street), render.Optional(a.Zip), render.Optional(a.City))
		}
	}
	if len(detail.Invoices) > 0 {
		fmt.Fprintln(out, "\ninvoices:")
		for _, inv := range detail.Invoices {
			fmt.Fprintf(out, "  %s %s %s\n", inv.Number, inv.State, inv.FormatAmount())
		}
	}
	if len(detail.Categories) > 0 {
		fmt.Fprintln(out, "\ncategories:")
		for _, c := range detail.Categories {
			fmt.Fprintf(out, "  %s\n", c.Name)
		}
	}
	return nil
}

func runPartyHistory(app *appctx.App, cmd *cobra.Command, args []string) error {
	partyID, err := resolveAnyParty(app, cmd, args[0])
	if err != nil {
		return err
	}
	history, err := app.Store.Parties.History(cmd.Context(), partyID)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(history))
	for _, h := range history {
		active := "-"
		if h.Active != nil {
			active = strconv.FormatBool(*h.Active)
		}
		rows = append(rows, []string{
			strconv.FormatInt(h.HistoryID, 10),
			h.RecordedAt,
			render.Optional(h.Name),
			render.Optional(h.Email),
			render.Optional(h.Phone),
			active,
		})
	}
	return app.Renderer(cmd).Render(history, []string{"VERSION", "RECORDED", "NAME", "EMAIL", "PHONE", "ACTIVE"}, rows)
}

func runPartyUpdate(app *appctx.App, cmd *cobra.Command, args []string) error {
	partyID, err := app.Store.Parties.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if cmd.Flags().Changed("name") {
		fields["name"] = partyName
	}
	if cmd.Flags().Changed("email") {
		fields["email"] = optionalFlag(partyEmail)
	}
	if cmd.Flags().Changed("phone") {
		fields["phone"] = optionalFlag(partyPhone)
	}
	if len(fields) == 0 {
		return fmt.Errorf("nothing to update (use --name, --email or --phone)")
	}

	if err := app.Store.Parties.Update(cmd.Context(), app.Actor, partyID, fields); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated party %s\n", id.FormatParty(partyID))
	return nil
}
