package embedding

import (
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds the characters embedded per symbol.
const MaxTextLength = 1000

// SymbolText builds the text embedded for a symbol: type, name and snippet
// joined by spaces, whitespace runs collapsed, cut at MaxTextLength
// characters with a trailing "...".
func SymbolText(symbolType, name, snippet string) string {
	return Clean(symbolType + " " + name + " " + snippet)
}

// Clean collapses whitespace and truncates to MaxTextLength characters.
func Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}

	n := 0
	for i := range text {
		if n == MaxTextLength {
			return text[:i] + "..."
		}
		n++
	}
	return text
}
