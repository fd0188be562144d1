package triage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash returns a deterministic fixed-width fingerprint of an issue's
// title and body, used only for change detection. Title and body are
// whitespace-normalized independently before joining, so cosmetic edits
// don't look like content changes.
func ContentHash(title, body string) string {
	content := normalizeWhitespace(title) + "|" + normalizeWhitespace(body)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
