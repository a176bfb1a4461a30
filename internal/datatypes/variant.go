// Package datatypes defines shared types for the embedding pipeline (e.g. embedding variants).
package datatypes

import (
	"errors"
	"fmt"
)

// Variant validation errors (sentinels for err113).
var (
	ErrInvalidVariant   = errors.New("invalid embedding variant")
	ErrDuplicateVariant = errors.New("duplicate embedding variant")
)

// Variant selects which card fields are embedded and in what order.
// Use String() to get the string representation for API/database.
type Variant uint8

// Variant constants; string form is given in variantMap.
const (
	VariantFront Variant = iota
	VariantBack
	VariantCombined
)

// variantMap maps string representations to Variant enums.
// This is the single source of truth for valid variant strings.
var variantMap = map[string]Variant{
	"front":    VariantFront,
	"back":     VariantBack,
	"combined": VariantCombined,
}

// reverseVariantMap maps Variant enums to string representations.
// Built at init time from variantMap for O(1) lookups.
var reverseVariantMap map[Variant]string

func init() {
	reverseVariantMap = make(map[Variant]string, len(variantMap))
	for str, v := range variantMap {
		reverseVariantMap[v] = str
	}
}

// String returns the string representation of a Variant.
// Implements fmt.Stringer. Returns empty string for invalid variants.
func (v Variant) String() string {
	str, ok := reverseVariantMap[v]
	if !ok {
		return ""
	}

	return str
}

// MarshalText implements encoding.TextMarshaler so JSON carries the variant
// string ("front"), never the numeric enum value.
func (v Variant) MarshalText() ([]byte, error) {
	s := v.String()
	if s == "" {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVariant, uint8(v))
	}

	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting the same
// strings ParseVariant does.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, ok := ParseVariant(string(text))
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidVariant, text)
	}

	*v = parsed

	return nil
}

// ParseVariant converts a string to a Variant enum.
// Returns the Variant and true if valid, or 0 and false if invalid.
func ParseVariant(s string) (Variant, bool) {
	v, ok := variantMap[s]

	return v, ok
}

// AllVariants returns every variant in a fixed order (front, back, combined).
func AllVariants() []Variant {
	return []Variant{VariantFront, VariantBack, VariantCombined}
}

// IsValidVariant checks if a variant string is valid.
func IsValidVariant(s string) bool {
	_, ok := variantMap[s]

	return ok
}

// ParseVariants converts a slice of strings to []Variant.
// Returns an error if any string is invalid or duplicated.
func ParseVariants(ss []string) ([]Variant, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	out := make([]Variant, 0, len(ss))

	seen := make(map[string]bool, len(ss))
	for _, s := range ss {
		if !IsValidVariant(s) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVariant, s)
		}

		if seen[s] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVariant, s)
		}

		seen[s] = true
		v, _ := ParseVariant(s)
		out = append(out, v)
	}

	return out, nil
}

// VariantStrings returns the string slice for a []Variant (for JSON marshaling).
func VariantStrings(variants []Variant) []string {
	if len(variants) == 0 {
		return nil
	}

	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v.String()
	}

	return out
}
