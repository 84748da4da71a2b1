package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DeriveTitle turns a student's first question into a short conversation title.
func DeriveTitle(question string) string {
	trimmed := strings.TrimSpace(question)
	title := trimmed

	for stripped := true; stripped; {
		stripped = false
		for _, phrase := range FillerPhrases {
			if n, ok := wordPrefixFold(title, phrase); ok {
				title = strings.TrimLeft(title[n:], " ,.!:;")
				stripped = true
				break
			}
		}
	}
	title = strings.TrimRight(strings.TrimSpace(title), "?!. ")
	if title == "" {
		title = trimmed
	}

	runes := []rune(title)
	if len(runes) > MaxTitleRunes {
		runes = []rune(strings.TrimSpace(string(runes[:MaxTitleRunes])))
	}
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

// wordPrefixFold matches phrase against the start of s under Unicode case folding and
// returns how many bytes of s it covered. The match must end on a word boundary.
func wordPrefixFold(s, phrase string) (int, bool) {
	n := 0
	for _, want := range phrase {
		got, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !strings.EqualFold(string(got), string(want)) {
			return 0, false
		}
		n += size
	}
	if next, size := utf8.DecodeRuneInString(s[n:]); size > 0 && (unicode.IsLetter(next) || unicode.IsDigit(next)) {
		return 0, false
	}
	return n, true
}
