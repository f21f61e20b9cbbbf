package types

import (
	"regexp"
	"strings"
)

var guidRegex = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ExtractSystemGUID finds the canonical policy GUID in the first value that
// contains one. The control plane returns the system id in several shapes
// (bare GUID, GUID embedded in a system path, full ARM id); all of them carry
// exactly one extractable GUID. Returns "" when no value contains a GUID, in
// which case callers fall back to sending the raw values verbatim.
func ExtractSystemGUID(values ...string) string {
	for _, value := range values {
		if match := guidRegex.FindString(value); match != "" {
			return strings.ToLower(match)
		}
	}
	return ""
}
