package differ

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenize splits s into alternating runs of whitespace and non-whitespace.
// Concatenating the tokens yields s again.
func tokenize(s string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i > start && space != inSpace {
			tokens = append(tokens, s[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

const (
	surrogateMin = 0xD800
	surrogateLen = 0x800
	// maxTokens keeps every encoded rune a valid, non-surrogate code point.
	maxTokens = utf8.MaxRune + 1 - surrogateLen
)

// tokenEncoder assigns one rune per distinct token, skipping the UTF-16
// surrogate range so encoded strings survive []rune <-> string conversion.
type tokenEncoder struct {
	index  map[string]int
	tokens []string
}

func newTokenEncoder() *tokenEncoder {
	return &tokenEncoder{index: make(map[string]int)}
}

func (e *tokenEncoder) encode(tokens []string) ([]rune, bool) {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		idx, seen := e.index[tok]
		if !seen {
			if len(e.tokens) >= maxTokens {
				return nil, false
			}
			idx = len(e.tokens)
			e.index[tok] = idx
			e.tokens = append(e.tokens, tok)
		}
		runes[i] = indexToRune(idx)
	}
	return runes, true
}

func (e *tokenEncoder) decode(encoded string) string {
	var sb strings.Builder
	for _, r := range encoded {
		sb.WriteString(e.tokens[runeToIndex(r)])
	}
	return sb.String()
}

func indexToRune(i int) rune {
	if i >= surrogateMin {
		return rune(i + surrogateLen)
	}
	return rune(i)
}

func runeToIndex(r rune) int {
	if r >= surrogateMin+surrogateLen {
		return int(r) - surrogateLen
	}
	return int(r)
}
