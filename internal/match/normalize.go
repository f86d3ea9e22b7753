package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinNameLength is the shortest normalized name considered usable for
// matching. Anything shorter is skipped to prevent spurious matches on
// near-empty strings.
const MinNameLength = 3

// legalSuffixes lists legal-entity suffix tokens stripped during name
// normalization. Tokens are compared after punctuation removal, so dotted
// forms like "L.L.C." collapse to "LLC" before the check runs.
var legalSuffixes = map[string]bool{
	"LLC":          true,
	"INC":          true,
	"INCORPORATED": true,
	"CORP":         true,
	"CORPORATION":  true,
	"LTD":          true,
	"LIMITED":      true,
	"LP":           true,
	"LLP":          true,
	"PLLC":         true,
	"PLC":          true,
	"PC":           true,
	"PA":           true,
	"NA":           true,
	"CO":           true,
	"COMPANY":      true,
	"GROUP":        true,
	"HOLDINGS":     true,
	"SERVICES":     true,
	"DBA":          true,
}

// asciiFold decomposes accented characters and drops the combining marks,
// so "Société" folds to "Societe" before uppercasing.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName standardizes an organization name for matching:
//  1. Folds diacritics to ASCII
//  2. Converts to uppercase
//  3. Replaces "&" with "AND" and strips all other punctuation
//  4. Collapses runs of whitespace to single spaces
//  5. Strips trailing legal-entity suffix tokens (LLC, Inc, Group, ...)
//
// The function is pure and idempotent: suffix stripping runs to a fixpoint
// and never removes the last remaining token, so normalizing an
// already-normalized name returns it unchanged.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "&", " AND ")

	// Joining punctuation vanishes ("Joe's" -> "JOES", "L.L.C." -> "LLC");
	// everything else outside A-Z, 0-9 and space becomes a token boundary.
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '\'', r == '’', r == '"', r == '.', r == ',':
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())

	// Strip trailing suffix tokens until none remain, keeping at least one
	// token so a name that is nothing but a suffix survives.
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}

// Usable reports whether a normalized name is long enough to match against.
func Usable(normalized string) bool {
	return len(normalized) >= MinNameLength
}
