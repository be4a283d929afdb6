package recognition

import "regexp"

// Accepted Brazilian plate grammars: legacy LLLNNNN and Mercosul
// LLLNLNN. Matching is strict: input is not case-folded, so lowercase
// plates are rejected (the external recognizer already emits uppercase,
// and typed plates must be exact).
var (
	legacyPlate   = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)
	mercosulPlate = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z][0-9]{2}$`)
)

// ValidPlate reports whether s is a well-formed plate in either the
// legacy or the Mercosul format.
func ValidPlate(s string) bool {
	return legacyPlate.MatchString(s) || mercosulPlate.MatchString(s)
}
