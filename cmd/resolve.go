package cmd

import (
	"github.com/spf13/cobra"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/presentation"
	"github.com/provender-dev/provender/internal/resolver"
)

var resolveLanguage string

var resolveCmd = &cobra.Command{
	Use:   "resolve [dependency...]",
	Short: "Resolve dependencies to a build recipe",
	Long: `Resolve a set of language dependencies to the system packages and
environment variables they need at build time.

The recipe starts from the language's default entry; each named dependency
that the registry knows about merges its inputs on top. Unknown dependencies
contribute nothing.

Examples:
  # Recipe for building against openssl-sys and libz-sys
  provender resolve --language rust openssl-sys libz-sys

  # Just the language defaults
  provender resolve -l rust

  # Parse specific fields with jq
  provender resolve -l rust openssl-sys | jq '."build-inputs"'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		r := resolver.New(store, cfg.ResolveCacheTTL)
		recipe, err := r.Resolve(cmd.Context(), resolveLanguage, args)
		if err != nil {
			return err
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		if err := formatter.FormatRecipe(presentation.FromRecipe(resolveLanguage, args, recipe)); err != nil {
			return err
		}
		log.Debug(log.CatResolve, "Served recipe", "language", resolveLanguage, "fresh", store.Fresh())
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveLanguage, "language", "l", "", "Language whose registry table to resolve against")
	_ = resolveCmd.MarkFlagRequired("language")
	rootCmd.AddCommand(resolveCmd)
}
