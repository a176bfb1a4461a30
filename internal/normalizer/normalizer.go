// Package normalizer extracts and cleans the text that gets embedded for a
// card and variant. Every function here is a pure function of its inputs:
// the content-hash cache and the staleness check both depend on identical
// input producing byte-identical output.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
)

// Separator joins front and back text for the combined variant.
const Separator = "[SEP]"

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	soundTagRe   = regexp.MustCompile(`\[sound:[^\]]*\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanMarkup strips HTML tags and Anki sound references, drops characters
// that interfere with embedding (keeping letters, digits and basic
// punctuation in any script), and collapses whitespace.
func CleanMarkup(text string) string {
	if text == "" {
		return ""
	}

	text = htmlTagRe.ReplaceAllString(text, " ")
	text = soundTagRe.ReplaceAllString(text, " ")

	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		switch r {
		case '-', '.', ',', '!', '?', ';', ':':
			return r
		}
		return -1
	}, text)

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// ExtractText returns the normalized text to embed for the given card and
// variant. Returns "" when every source field for the variant is blank;
// callers must map that to the zero-vector policy instead of encoding.
func ExtractText(card *models.Card, variant datatypes.Variant) string {
	front := CleanMarkup(card.FrontText)
	back := CleanMarkup(card.BackText)

	switch variant {
	case datatypes.VariantFront:
		return front
	case datatypes.VariantBack:
		return back
	case datatypes.VariantCombined:
		if front == "" && back == "" {
			return ""
		}
		if front == "" {
			return back
		}
		if back == "" {
			return front
		}
		return front + " " + Separator + " " + back
	}

	return ""
}

// ContentHash returns the full sha256 hex digest of the normalized text.
// The digest is never truncated; collision risk must stay negligible because
// the hash doubles as the cache key and the staleness fingerprint.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
