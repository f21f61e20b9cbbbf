package azure

import (
	"context"
	"fmt"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
)

type IPolicyLocator interface {
	ResolvePolicy(ctx context.Context, resourceGroup string, policyName string) (*types.PolicyResource, error)
}

type PolicyLocator struct {
	SubscriptionID string
	Credential     azcore.TokenCredential
	Logger         *logrus.Logger
}

func NewPolicyLocator(subscriptionID string, credential azcore.TokenCredential, logger *logrus.Logger) *PolicyLocator {
	return &PolicyLocator{
		SubscriptionID: subscriptionID,
		Credential:     credential,
		Logger:         logger,
	}
}

const policyQueryTemplate = `resources | where type =~ 'microsoft.powerplatform/enterprisepolicies' and resourceGroup =~ '%s' and name =~ '%s' | project id, name, systemId = tostring(properties.systemId)`

// ResolvePolicy looks up the enterprise policy with a Resource Graph query
// scoped to the subscription and resource group, and extracts the canonical
// GUID from whichever identifier field carries one.
func (locator *PolicyLocator) ResolvePolicy(ctx context.Context, resourceGroup string, policyName string) (*types.PolicyResource, error) {
	query := fmt.Sprintf(policyQueryTemplate, resourceGroup, policyName)
	locator.Logger.Infof("Resolving enterprise policy %s in resource group %s", policyName, resourceGroup)
	locator.Logger.Tracef("Query: %s", query)

	resourcesClient, err := armresourcegraph.NewClient(locator.Credential, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating resource graph client")
	}

	queryRequest := armresourcegraph.QueryRequest{
		Query:         to.Ptr(query),
		Subscriptions: []*string{to.Ptr(locator.SubscriptionID)},
	}

	res, err := resourcesClient.Resources(ctx, queryRequest, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "querying resource graph for policy %s", policyName)
	}

	results, ok := res.QueryResponse.Data.([]any)
	if !ok || len(results) == 0 {
		return nil, errors.Wrapf(types.ErrNotFound, "enterprise policy %s in resource group %s", policyName, resourceGroup)
	}
	if len(results) > 1 {
		locator.Logger.Warnf("More than one enterprise policy matched name %s, using the first", policyName)
	}

	resource := results[0].(map[string]any)
	return locator.policyFromGraphResult(resource), nil
}

func (locator *PolicyLocator) policyFromGraphResult(resource map[string]any) *types.PolicyResource {
	policy := &types.PolicyResource{}
	if name, ok := resource["name"].(string); ok {
		policy.Name = name
	}
	if armID, ok := resource["id"].(string); ok {
		policy.ArmID = armID
	}
	if systemID, ok := resource["systemId"].(string); ok {
		policy.SystemID = systemID
	}

	policy.SystemGUID = types.ExtractSystemGUID(policy.SystemID, policy.ArmID)
	if policy.SystemGUID == "" {
		locator.Logger.Warnf("No GUID found in system id %q or ARM id %q, raw values will be sent verbatim", policy.SystemID, policy.ArmID)
	} else {
		locator.Logger.Debugf("Resolved policy %s to system GUID %s", policy.Name, policy.SystemGUID)
	}
	return policy
}
