package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain passes text attachments through as-is, substituting the
// Unicode replacement character for any invalid UTF-8 so the index never
// sees broken sequences.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}
