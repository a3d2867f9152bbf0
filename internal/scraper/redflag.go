package scraper

import "strings"

// DefaultRedFlags are phrases that commonly mark scam postings.
var DefaultRedFlags = []string{
	"wire transfer",
	"western union",
	"upfront fee",
	"processing fee",
	"training fee",
	"pay to apply",
	"send money",
	"guaranteed income",
	"get rich",
	"bitcoin payment",
	"no interview required",
}

// MatchRedFlags returns every red flag term found (case-insensitive) in the
// combined title + company + description text, in the order of redFlags.
func MatchRedFlags(title, company, description string, redFlags []string) []string {
	if len(redFlags) == 0 {
		return nil
	}
	combined := strings.ToLower(title + " " + company + " " + description)
	var hits []string
	for _, flag := range redFlags {
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			hits = append(hits, flag)
		}
	}
	return hits
}
