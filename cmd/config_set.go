package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provender-dev/provender/internal/config"
)

var configSetCmd = &cobra.Command{
	Use:   "config:set",
	Short: "Update settings in the config file",
	Long: `Update individual settings in the config file, preserving comments and
formatting in other sections.

Examples:
  # Work from the cache only
  provender config:set --offline=true

  # Point the refresher at a mirror
  provender config:set --registry-url https://mirror.example.com/registry.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		changed := false

		if cmd.Flags().Changed("offline") {
			offline, _ := cmd.Flags().GetBool("offline")
			if err := config.SaveOffline(path, offline); err != nil {
				return err
			}
			changed = true
		}
		if cmd.Flags().Changed("registry-url") {
			url, _ := cmd.Flags().GetString("registry-url")
			if err := config.SaveRegistryURL(path, url); err != nil {
				return err
			}
			changed = true
		}

		if !changed {
			return fmt.Errorf("nothing to set: pass --offline or --registry-url")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", path)
		return nil
	},
}

func init() {
	configSetCmd.Flags().Bool("offline", false, "Skip the background registry refresh")
	configSetCmd.Flags().String("registry-url", "", "Endpoint the refresher fetches registry data from")
	rootCmd.AddCommand(configSetCmd)
}
