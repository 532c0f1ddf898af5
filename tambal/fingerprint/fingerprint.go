// Package fingerprint turns raw error reports into a stable cache identity.
//
// Two reports that only differ in file system paths or line numbers collapse
// onto the same hash, so a fix learned for one user is found for the next.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// hex characters kept from the digest.
	HashLen = 16

	CategoryUnknown = "unknown"

	pathToken = "<path>"
	numToken  = "<n>"
)

var (
	// unix, windows and home-relative paths with at least one separator.
	pathRe = regexp.MustCompile(`(?:[A-Za-z]:|~|\.{1,2})?(?:[\\/][\w.\-]+)+`)
	// no word boundary, "line 2line 3" must collapse in one pass.
	lineRe = regexp.MustCompile(`(?i)line \d+`)
	// runs like :10:5: collapse into one token so a second pass is a no-op.
	colonNumRe = regexp.MustCompile(`:\d+(?::\d+)*:`)
)

// Print is the identity of one error report.
type Print struct {
	Hash     string
	Category string
}

// Normalize strips environment specific detail from text.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(mask(text)))
}

// mask replaces paths and line numbers but keeps case and spacing.
func mask(text string) string {
	s := pathRe.ReplaceAllString(text, pathToken)
	s = lineRe.ReplaceAllString(s, "line "+numToken)
	return colonNumRe.ReplaceAllString(s, ":"+numToken+":")
}

// Hash returns the truncated sha256 of the normalized text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])[:HashLen]
}

// Of computes the print of text with the default rule set.
func Of(text string) Print {
	return Default.Of(text)
}

// Of computes the print of text with the classifier's rules. Rules see the
// masked text, so a line number or directory name never picks the category.
func (c *Classifier) Of(text string) Print {
	return Print{
		Hash:     Hash(text),
		Category: c.Classify(mask(text)),
	}
}
