package prompt

import "github.com/antoniostano/aria/internal/narrative"

// Disclosure is the instruction injected when retrieved context is too thin
// to ground recall. Its presence is binary: exactly when the narrative falls
// below the minimum-content threshold.
const Disclosure = "You have no specific memory of earlier conversations relevant to this message. " +
	"If the user asks what was said or done before, say honestly that you do not remember " +
	"instead of inventing names, topics, or details."

// MaybeDisclosure returns the anti-hallucination instruction when the
// rendered narrative is below minChars, and the empty string otherwise.
func MaybeDisclosure(n narrative.Narrative, minChars int) string {
	if n.RenderedLen() < minChars {
		return Disclosure
	}
	return ""
}
