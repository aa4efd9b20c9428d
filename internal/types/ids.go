package types

import "github.com/google/uuid"

// NewTableID generates a UUIDv7 table identifier.
// Time-ordered IDs keep sequential inserts clustered in B-tree pages.
// Panics on clock regression (uuid.Must).
func NewTableID() TableID {
	return TableID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewAttributeID generates a UUIDv7 attribute registry identifier.
func NewAttributeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseTableID validates and converts a string to TableID.
// The canonical lower-case form is returned so lookups match stored ids.
func ParseTableID(s string) (TableID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return TableID(u.String()), nil
}
