package types

import "errors"

// ErrNotFound is returned when a named policy or environment does not exist
// in the target scope.
var ErrNotFound = errors.New("not found")

type PolicyResource struct {
	Name string
	// ArmID is the fully qualified resource path of the enterprise policy.
	ArmID string
	// SystemID is the raw identifier returned by the control plane. Its shape
	// varies: a bare GUID, a GUID embedded in a longer system path, or the
	// full ARM id.
	SystemID string
	// SystemGUID is the canonical GUID extracted from SystemID/ArmID, or
	// empty when no GUID could be extracted from any known field.
	SystemGUID string
}

// IdentifierFor returns the policy identifier value to place in the request
// payload for the given body variant. When no canonical GUID is available the
// raw SystemID is used verbatim so a request is still issued.
func (policy *PolicyResource) IdentifierFor(bodyVariant BodyVariant) string {
	switch bodyVariant {
	case BodyVariantGuid, BodyVariantLowerCamel:
		if policy.SystemGUID != "" {
			return policy.SystemGUID
		}
		return policy.SystemID
	case BodyVariantSystemPath:
		return policy.SystemID
	case BodyVariantArmID:
		return policy.ArmID
	default:
		return ""
	}
}

type EnvironmentRef struct {
	DisplayName string
	ID          string
}
