/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "enterprise-policy-linker",
	Short: "Link and unlink Power Platform network-injection enterprise policies",
	Long: `enterprise-policy-linker manages the linkage between an Azure
network-injection enterprise policy and a Power Platform environment.

It resolves the policy's system id and the target environment, drives the
asynchronous administrative API to link or unlink them, and tolerates the
API's version-to-version inconsistencies by falling back across alternate
request shapes. Every attempt is recorded and exported for diagnostics.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("verbosity", "v", "info", "Log verbosity: trace, debug, info, warn, error")
	viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbosity"))
	rootCmd.PersistentFlags().Bool("structuredLogs", false, "Emit logs as JSON")
	viper.BindPFlag("structuredLogs", rootCmd.PersistentFlags().Lookup("structuredLogs"))

	rootCmd.PersistentFlags().StringP("envFile", "e", ".env", "Path to the shared key=value env file")
	viper.BindPFlag("envFile", rootCmd.PersistentFlags().Lookup("envFile"))
	rootCmd.PersistentFlags().StringP("workingFolderPath", "w", ".", "Working folder path for attempt history exports")
	viper.BindPFlag("workingFolderPath", rootCmd.PersistentFlags().Lookup("workingFolderPath"))

	rootCmd.PersistentFlags().StringP("policyName", "p", "", "Enterprise policy name (overrides ENTERPRISE_POLICY_NAME)")
	viper.BindPFlag("policyName", rootCmd.PersistentFlags().Lookup("policyName"))
	rootCmd.PersistentFlags().StringP("resourceGroup", "g", "", "Resource group containing the policy (overrides RESOURCE_GROUP)")
	viper.BindPFlag("resourceGroup", rootCmd.PersistentFlags().Lookup("resourceGroup"))
	rootCmd.PersistentFlags().StringP("subscriptionId", "s", "", "Subscription id containing the policy (overrides SUBSCRIPTION_ID)")
	viper.BindPFlag("subscriptionId", rootCmd.PersistentFlags().Lookup("subscriptionId"))
	rootCmd.PersistentFlags().StringP("environmentName", "n", "", "Environment display name (overrides POWER_PLATFORM_ENVIRONMENT_NAME)")
	viper.BindPFlag("environmentName", rootCmd.PersistentFlags().Lookup("environmentName"))
	rootCmd.PersistentFlags().StringP("environmentId", "i", "", "Environment id, skips display-name resolution (overrides POWER_PLATFORM_ENVIRONMENT_ID)")
	viper.BindPFlag("environmentId", rootCmd.PersistentFlags().Lookup("environmentId"))

	rootCmd.PersistentFlags().BoolP("exhaustive", "x", false, "Sweep the full fallback matrix and record every attempt")
	viper.BindPFlag("exhaustive", rootCmd.PersistentFlags().Lookup("exhaustive"))
	rootCmd.PersistentFlags().Int("timeoutSeconds", 900, "Polling budget per asynchronous operation")
	viper.BindPFlag("timeoutSeconds", rootCmd.PersistentFlags().Lookup("timeoutSeconds"))
	rootCmd.PersistentFlags().Int("intervalSeconds", 15, "Polling interval")
	viper.BindPFlag("intervalSeconds", rootCmd.PersistentFlags().Lookup("intervalSeconds"))
}
