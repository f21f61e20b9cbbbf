/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/azure/enterprise-policy-linker/types"
	"github.com/spf13/cobra"
)

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link the enterprise policy to a Power Platform environment",
	Long: `The link command resolves the enterprise policy and the target
environment, then drives the administrative API until the policy is linked:

1. Resolves the policy's system id via Azure Resource Graph
2. Resolves the environment id from its display name (unless given directly)
3. Issues the link request and polls the asynchronous operation
4. Exports the attempt history to the working folder

Examples:
  # Link using values from the shared .env file
  enterprise-policy-linker link --envFile ./.env

  # Link with explicit names
  enterprise-policy-linker link -p ep-test-01 -g rg-network -s <subscription-id> -n "Contoso Dev"

  # Diagnose a flaky link by sweeping every request shape and API version
  enterprise-policy-linker link --exhaustive -p ep-test-01 -g rg-network -s <subscription-id> -i env-123`,
	Run: func(cmd *cobra.Command, args []string) {
		runLinkage(types.ActionLink)
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
}
