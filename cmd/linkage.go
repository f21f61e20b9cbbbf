package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/azure/enterprise-policy-linker/audit"
	"github.com/azure/enterprise-policy-linker/azure"
	"github.com/azure/enterprise-policy-linker/config"
	"github.com/azure/enterprise-policy-linker/matrix"
	"github.com/azure/enterprise-policy-linker/orchestrator"
	"github.com/azure/enterprise-policy-linker/powerplatform"
	"github.com/azure/enterprise-policy-linker/types"
	"github.com/spf13/viper"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

var log = logrus.New()

func runLinkage(action types.Action) {
	logVerbosity := viper.GetString("verbosity")
	logLevel, err := logrus.ParseLevel(logVerbosity)
	if err != nil {
		log.Fatalf("Invalid log level: %s", logVerbosity)
	}
	log.SetLevel(logLevel)
	log.SetFormatter(&logrus.TextFormatter{})
	if viper.GetBool("structuredLogs") {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	for key, value := range viper.GetViper().AllSettings() {
		log.Debugf("Command Flag: %s = %s", key, value)
	}

	store, err := config.NewStore(viper.GetString("envFile"), log)
	if err != nil {
		log.Fatalf("Error opening env file: %v", err)
	}
	cfg, err := store.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	applyFlagOverrides(cfg)

	if cfg.EnterprisePolicyName == "" || cfg.ResourceGroup == "" || cfg.SubscriptionID == "" {
		log.Fatal("Enterprise policy name, resource group and subscription id must be provided via the env file or flags")
	}
	if cfg.EnvironmentID == "" && cfg.EnvironmentName == "" {
		log.Fatal("An environment id or environment display name must be provided")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		log.Fatal(err)
	}

	timeoutSeconds := viper.GetInt("timeoutSeconds")
	intervalSeconds := viper.GetInt("intervalSeconds")

	policyLocator := azure.NewPolicyLocator(cfg.SubscriptionID, cred, log)
	environmentClient := powerplatform.NewEnvironmentClient(cfg.AdminBaseURL, powerplatform.SupportedAPIVersions[0], cfg.TokenScope, cred, nil, log)
	operationClient := powerplatform.NewOperationClient(cfg.AdminBaseURL, cfg.TokenScope, cred, nil, log)
	operationPoller := powerplatform.NewOperationPoller(cfg.TokenScope, cred, nil, log)
	matrixRunner := matrix.NewMatrixRunner(operationClient, environmentClient, operationPoller, powerplatform.SupportedAPIVersions, timeoutSeconds, intervalSeconds, log)
	linkageOrchestrator := orchestrator.NewLinkageOrchestrator(cfg, policyLocator, environmentClient, matrixRunner, operationPoller, timeoutSeconds, intervalSeconds, log)

	ctx := context.Background()
	var outcome *types.LinkageOutcome
	if viper.GetBool("exhaustive") {
		outcome, err = linkageOrchestrator.RunExhaustive(ctx, []types.Action{action})
	} else if action == types.ActionLink {
		outcome, err = linkageOrchestrator.EnsureLinked(ctx)
	} else {
		outcome, err = linkageOrchestrator.EnsureUnlinked(ctx)
	}
	if err != nil {
		log.Fatalf("Linkage run failed: %v", err)
	}

	exportAttempts(viper.GetString("workingFolderPath"), outcome)
	logAttemptSummary(outcome)
	log.Infof("Outcome: %s", outcome.Outcome)

	if !outcome.Outcome.IsSuccess() {
		os.Exit(1)
	}

	if err := store.Save(cfg); err != nil {
		log.Warnf("Could not persist configuration: %v", err)
	}
}

func applyFlagOverrides(cfg *config.Config) {
	if value := viper.GetString("policyName"); value != "" {
		cfg.EnterprisePolicyName = value
	}
	if value := viper.GetString("resourceGroup"); value != "" {
		cfg.ResourceGroup = value
	}
	if value := viper.GetString("subscriptionId"); value != "" {
		cfg.SubscriptionID = value
	}
	if value := viper.GetString("environmentName"); value != "" {
		cfg.EnvironmentName = value
	}
	if value := viper.GetString("environmentId"); value != "" {
		cfg.EnvironmentID = value
	}
}

func exportAttempts(workingFolderPath string, outcome *types.LinkageOutcome) {
	jsonClient := audit.NewJsonExportClient(workingFolderPath, log)
	if err := jsonClient.Export(outcome, "attempts.json"); err != nil {
		log.Warnf("Could not write attempts.json: %v", err)
	}
	csvClient := audit.NewCsvExportClient(workingFolderPath, log)
	if err := csvClient.Export(outcome, "attempts.csv"); err != nil {
		log.Warnf("Could not write attempts.csv: %v", err)
	}
}

func logAttemptSummary(outcome *types.LinkageOutcome) {
	for i, attempt := range outcome.Attempts {
		if attempt.Succeeded() {
			log.Infof("Attempt %d: %s %s/%s -> HTTP %d, final status %q", i+1, attempt.Action, attempt.APIVersion, attempt.BodyVariant, attempt.HTTPStatus, attempt.FinalStatus)
			continue
		}
		log.Warnf("Attempt %d: %s %s/%s -> HTTP %d, error code %q, message %q, correlation id %q", i+1, attempt.Action, attempt.APIVersion, attempt.BodyVariant, attempt.HTTPStatus, attempt.ErrorCode, attempt.ErrorMessage, attempt.CorrelationID)
	}
}
