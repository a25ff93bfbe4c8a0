package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/presentation"
)

var showLanguage string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached registry data as JSON",
	Long: `Print the locally cached registry data as JSON.

The data is served from the cache immediately; a background refresh updates
the cache for the next invocation. Use --language to print a single language
table.

Examples:
  # Print the whole registry
  provender show

  # Print one language table
  provender show --language rust
  provender show -l rust

  # Parse specific fields with jq
  provender show | jq '.languages[].name'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		formatter := presentation.NewFormatter(cmd.OutOrStdout())

		if cmd.Flags().Changed("language") {
			raw, ok := store.Language(showLanguage)
			if !ok {
				return fmt.Errorf("language %q not present in registry", showLanguage)
			}
			if err := formatter.FormatLanguage(presentation.LanguageDTO{
				Name:  showLanguage,
				Table: raw,
			}); err != nil {
				return err
			}
			log.Debug(log.CatRegistry, "Served language table", "language", showLanguage, "fresh", store.Fresh())
			return nil
		}

		if err := formatter.FormatSnapshot(presentation.FromSnapshot(store.Snapshot())); err != nil {
			return err
		}
		log.Debug(log.CatRegistry, "Served registry snapshot", "fresh", store.Fresh())
		return nil
	},
}

func init() {
	showCmd.Flags().StringVarP(&showLanguage, "language", "l", "", "Print a single language table")
	rootCmd.AddCommand(showCmd)
}
