/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/azure/enterprise-policy-linker/types"
	"github.com/spf13/cobra"
)

// unlinkCmd represents the unlink command
var unlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Unlink the enterprise policy from a Power Platform environment",
	Long: `The unlink command removes the linkage between the enterprise policy
and the environment. Unlink is idempotent: a missing environment, a missing
linkage (HTTP 404), or a conflict whose re-check shows the policy already
gone all count as the desired state. A genuine conflict falls back to the
alternate unlink endpoint shapes before the run is declared failed.

Examples:
  # Unlink using values from the shared .env file
  enterprise-policy-linker unlink --envFile ./.env

  # Unlink with explicit names
  enterprise-policy-linker unlink -p ep-test-01 -g rg-network -s <subscription-id> -n "Contoso Dev"`,
	Run: func(cmd *cobra.Command, args []string) {
		runLinkage(types.ActionUnlink)
	},
}

func init() {
	rootCmd.AddCommand(unlinkCmd)
}
