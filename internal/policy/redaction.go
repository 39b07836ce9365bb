// Package policy masks high-risk PII before conversation text becomes a
// durable memory record. Redaction is one-way: stored records carry the
// class marker, never the original value.
package policy

import "regexp"

// Redaction classes, reported per turn so callers can tell what was masked
// without ever seeing the masked value.
const (
	ClassEmail = "email"
	ClassCard  = "card"
	ClassIBAN  = "iban"
	ClassPhone = "phone"
	ClassIPv4  = "ipv4"
)

type rule struct {
	class   string
	marker  string
	pattern *regexp.Regexp
}

// Rule order is load-bearing: card and IBAN run before phone so long digit
// runs are not consumed as phone numbers first.
var rules = []rule{
	{ClassEmail, "[REDACTED_EMAIL]", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{ClassCard, "[REDACTED_CARD]", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{ClassIBAN, "[REDACTED_IBAN]", regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)},
	{ClassPhone, "[REDACTED_PHONE]", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)},
	{ClassIPv4, "[REDACTED_IP]", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// RedactPII masks every known PII class in the input and returns the masked
// text together with the classes that matched, in rule order. An empty class
// slice means the input came back untouched.
func RedactPII(input string) (string, []string) {
	out := input
	var classes []string
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		if next != out {
			classes = append(classes, r.class)
			out = next
		}
	}
	return out, classes
}
