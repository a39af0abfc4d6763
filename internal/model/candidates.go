package model

import "strings"

// ActionMarker marks a field within a state as referring to an action.
const ActionMarker = "a_"

// IsActionField reports whether a state field refers to an action.
func IsActionField(name string) bool {
	return strings.HasPrefix(name, ActionMarker)
}
