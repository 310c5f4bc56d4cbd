package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/partymerge/internal/cli/appctx"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/render"
)

var diffCmd = &cobra.Command{
	Use:   "diff <A> <B>",
	Short: "Compare two parties",
	Long: `Compare two parties and the records that reference them, to help pick
which one to keep before a merge. Identities and timestamps are left out of
the comparison.

Examples:
  partymerge diff PTY-00001 PTY-00002
  partymerge diff Acme "ACME Corp"
`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDiff),
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

// partyComparison is the part of a party that differs between duplicates.
type partyComparison struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Phone      string   `yaml:"phone"`
	Active     bool     `yaml:"active"`
	Addresses  []string `yaml:"addresses"`
	Invoices   []string `yaml:"invoices"`
	Categories []string `yaml:"categories"`
}

func compareView(p *showParty) partyComparison {
	c := partyComparison{
		Name:       p.Name,
		Email:      render.Optional(p.Email),
		Phone:      render.Optional(p.Phone),
		Active:     p.Active,
		Addresses:  []string{},
		Invoices:   []string{},
		Categories: []string{},
	}
	for _, a := range p.Addresses {
		c.Addresses = append(c.Addresses, fmt.Sprintf("%s, %s %s, %s",
			render.Optional(a.Street), render.Optional(a.Zip), render.Optional(a.City), render.Optional(a.Country)))
	}
	for _, inv := range p.Invoices {
		c.Invoices = append(c.Invoices, fmt.Sprintf("%s %s %s", inv.Number, inv.State, inv.FormatAmount()))
	}
	for _, cat := range p.Categories {
		c.Categories = append(c.Categories, cat.Name)
	}
	return c
}

func runDiff(app *appctx.App, cmd *cobra.Command, args []string) error {
	a, err := loadShowParty(app, cmd, args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve party A: %w", err)
	}
	b, err := loadShowParty(app, cmd, args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve party B: %w", err)
	}

	out, err := render.Diff(compareView(a), compareView(b), id.FormatParty(a.ID), id.FormatParty(b.ID))
	if err != nil {
		return err
	}
	if out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No differences")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
