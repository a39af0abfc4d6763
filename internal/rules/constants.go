package rules

import "math"

// Condition operators.
const (
	LessThan         = "<"
	LessThanEqual    = "<="
	GreaterThan      = ">"
	GreaterThanEqual = ">="
)

// Operators lists every valid condition operator.
var Operators = []string{LessThan, LessThanEqual, GreaterThan, GreaterThanEqual}

// Rule evaluation outcomes that are not regular action keys.
const (
	// NoAction means a rule did not fire.
	NoAction = "-1"

	// LookBack means a rule fired and asks for the action taken a number
	// of steps ago.
	LookBack = "lb"
)

// CategoryMarker separates a categorical variable's name from one of its
// category values in an encoded state or action name.
const CategoryMarker = "_is_category_"

// Granularity is the resolution of evolved coefficients; DecimalDigits is
// the number of digits used when printing them.
const Granularity = 100

// DecimalDigits is log10(Granularity).
var DecimalDigits = int(math.Round(math.Log10(Granularity)))
