package match

import "strings"

// MinKeywordLength is the shortest domain keyword used for matching; short
// keywords appear as substrings of too many reference names.
const MinKeywordLength = 4

// keywordStopWords are generic business words stripped from the edges of a
// domain label before it is used as a matching keyword. "getacme.com" and
// "acmegroup.com" both yield "ACME".
var keywordStopWords = []string{
	"group", "holdings", "inc", "llc", "corp",
	"the", "get", "go", "my", "team", "hq", "usa",
}

// Keys holds the auxiliary blocking keys derived from a record.
type Keys struct {
	State         string
	City          string
	Postal5       string
	DomainKeyword string
}

// ExtractKeys derives blocking keys from a record's geographic fields and
// optional web domain. Missing or malformed fields yield empty keys; an
// empty key simply makes the record ineligible for tiers requiring it.
func ExtractKeys(state, city, postal, domain string) Keys {
	return Keys{
		State:         strings.ToUpper(strings.TrimSpace(state)),
		City:          strings.ToUpper(strings.TrimSpace(city)),
		Postal5:       Postal5(postal),
		DomainKeyword: DomainKeyword(domain),
	}
}

// Postal5 returns the 5-digit ZIP prefix of a postal code, handling ZIP+4
// forms. Returns "" when the code is absent or does not start with 5 digits.
func Postal5(postal string) string {
	postal = strings.TrimSpace(postal)
	if len(postal) < 5 {
		return ""
	}
	for _, r := range postal[:5] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return postal[:5]
}

// CanonicalDomain reduces a domain field to a bare lowercase hostname,
// tolerating pasted URLs and "www." prefixes. Both sides of the
// domain-authority table go through this before lookup.
func CanonicalDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return ""
	}
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, "www.")
}

// DomainKeyword derives an uppercase matching keyword from a web domain by
// taking the label before the first dot and trimming generic business words
// from its edges. Returns "" when no domain is given or the remaining
// keyword is shorter than MinKeywordLength.
func DomainKeyword(domain string) string {
	d := CanonicalDomain(domain)
	if d == "" {
		return ""
	}

	label, _, _ := strings.Cut(d, ".")

	// Trim stop words from either edge until nothing more comes off.
	for changed := true; changed; {
		changed = false
		for _, w := range keywordStopWords {
			if len(label) > len(w) && strings.HasPrefix(label, w) {
				label = label[len(w):]
				changed = true
			}
			if len(label) > len(w) && strings.HasSuffix(label, w) {
				label = label[:len(label)-len(w)]
				changed = true
			}
		}
	}

	label = strings.Trim(label, "-")
	if len(label) < MinKeywordLength {
		return ""
	}
	return strings.ToUpper(label)
}
