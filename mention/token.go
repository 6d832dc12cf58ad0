package mention

import (
	"strings"
	"unicode"
)

// Token is an active mention: the runes from the '@' up to the caret.
type Token struct {
	Start int // offset of '@'
	End   int // caret offset
	Query string
}

// ActiveToken returns the mention token ending at caret. The '@' must start
// the text or follow whitespace, and no whitespace may appear between it and
// the caret.
func ActiveToken(text string, caret int) (Token, bool) {
	runes := []rune(text)
	if caret < 0 || caret > len(runes) {
		return Token{}, false
	}
	for i := caret - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsSpace(r) {
			return Token{}, false
		}
		if r != '@' {
			continue
		}
		if i > 0 && !unicode.IsSpace(runes[i-1]) {
			return Token{}, false
		}
		return Token{Start: i, End: caret, Query: string(runes[i+1 : caret])}, true
	}
	return Token{}, false
}

// SanitizeFilename turns a file name into a single mention-safe word.
func SanitizeFilename(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r) || r == '@':
			if !dash && b.Len() > 0 {
				b.WriteRune('-')
				dash = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			dash = false
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "file"
	}
	return out
}
