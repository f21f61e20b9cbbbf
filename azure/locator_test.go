package azure

import (
	"testing"

	"github.com/azure/enterprise-policy-linker/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestPolicyFromGraphResultExtractsGuid(t *testing.T) {
	locator := NewPolicyLocator("sub-id", nil, logrus.New())

	policy := locator.policyFromGraphResult(map[string]any{
		"id":       "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg1/providers/Microsoft.PowerPlatform/enterprisePolicies/ep-test-01",
		"name":     "ep-test-01",
		"systemId": "/regions/unitedstates/providers/Microsoft.PowerPlatform/enterprisePolicies/7f5ce1a0-1234-4abc-9def-0123456789ab",
	})

	assert.Equal(t, "ep-test-01", policy.Name)
	assert.Equal(t, "7f5ce1a0-1234-4abc-9def-0123456789ab", policy.SystemGUID)
}

func TestPolicyFromGraphResultKeepsRawValuesWithoutGuid(t *testing.T) {
	locator := NewPolicyLocator("sub-id", nil, logrus.New())

	policy := locator.policyFromGraphResult(map[string]any{
		"id":       "/subscriptions/sub/resourceGroups/rg1/providers/Microsoft.PowerPlatform/enterprisePolicies/ep-test-01",
		"name":     "ep-test-01",
		"systemId": "opaque-system-id",
	})

	assert.Empty(t, policy.SystemGUID)
	assert.Equal(t, "opaque-system-id", policy.SystemID)
	assert.Equal(t, "opaque-system-id", policy.IdentifierFor(types.BodyVariantGuid))
}

func TestPolicyFromGraphResultPrefersSystemIDGuidOverArmGuid(t *testing.T) {
	locator := NewPolicyLocator("sub-id", nil, logrus.New())

	policy := locator.policyFromGraphResult(map[string]any{
		"id":       "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg1/providers/Microsoft.PowerPlatform/enterprisePolicies/ep-test-01",
		"name":     "ep-test-01",
		"systemId": "7f5ce1a0-1234-4abc-9def-0123456789ab",
	})

	assert.Equal(t, "7f5ce1a0-1234-4abc-9def-0123456789ab", policy.SystemGUID)
}
