package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "partymerge",
	Short: "Find and merge duplicate party records",
	Long: `partymerge manages parties (people and organizations) together with
the addresses, invoices and categories that reference them, and merges
duplicate parties into one surviving record.

A merge moves every stored reference from the duplicates to the target,
keeps the target's history complete, then deactivates (soft) or deletes
(hard) the duplicates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides PARTYMERGE_DB_PATH)")
	rootCmd.PersistentFlags().String("as", "", "Actor recorded on events and merge audit rows")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml, tsv")
}
