package memory

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates LLM token count for mixed-script text.
// Latin text runs about four characters per token; CJK scripts run
// about one token per character. Estimates are used for budget
// accounting only, so consistency matters more than precision.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var latin, cjk int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana):
			cjk++
		case unicode.IsSpace(r):
			// whitespace folds into neighboring tokens
		default:
			latin++
		}
	}
	tokens := latin/4 + cjk
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokens cuts text at a word boundary so its estimated token
// count stays at or under limit.
func TruncateToTokens(text string, limit int) string {
	if EstimateTokens(text) <= limit {
		return strings.TrimSpace(text)
	}
	words := strings.Fields(text)
	var b strings.Builder
	for _, w := range words {
		candidate := b.String()
		if candidate != "" {
			candidate += " "
		}
		candidate += w
		if EstimateTokens(candidate) > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(w)
	}
	return b.String()
}
