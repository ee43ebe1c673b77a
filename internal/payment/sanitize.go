package payment

import (
	"strings"
	"unicode"
)

// maxPurposeLen is the provider's cap on the payment purpose field.
const maxPurposeLen = 140

// SanitizePurpose reduces a free-text payment purpose to something the
// provider accepts: letters, digits, spaces and basic punctuation only,
// whitespace collapsed, length capped.
func SanitizePurpose(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case strings.ContainsRune(".,:;-#№()", r):
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(out); len(runes) > maxPurposeLen {
		out = string(runes[:maxPurposeLen])
	}
	return out
}
