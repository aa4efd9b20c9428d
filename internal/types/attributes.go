// internal/types/attributes.go
package types

import "strings"

// ResolutionStrategy names how a missing attribute is fetched.
type ResolutionStrategy string

const (
	StrategyDirect      ResolutionStrategy = "DIRECT"
	StrategyAssociation ResolutionStrategy = "ASSOCIATION"
	StrategyExternal    ResolutionStrategy = "EXTERNAL"
)

// ParseResolutionStrategy accepts the bare name as well as enum-qualified
// forms like "ResolutionStrategy.DIRECT".
func ParseResolutionStrategy(s string) ResolutionStrategy {
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return ResolutionStrategy(strings.ToUpper(strings.TrimSpace(s)))
}

// AttributeEntry is one attribute registry row, keyed by
// (TargetObject, AttributeName). PathLogic holds the strategy-specific
// descriptor exactly as configured.
type AttributeEntry struct {
	ID            string             `json:"-"`
	TargetObject  string             `json:"target_object"`
	AttributeName string             `json:"attribute_name"`
	Strategy      ResolutionStrategy `json:"resolution_strategy"`
	PathLogic     map[string]any     `json:"path_logic"`
}
