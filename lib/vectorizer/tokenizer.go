package vectorizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenizer splits text to lowercase word tokens and builds word n-grams from them
type tokenizer struct {
	minLen    int
	ngramMin  int
	ngramMax  int
	stopWords map[string]struct{}
}

func newTokenizer(p Params) tokenizer {
	res := tokenizer{minLen: p.MinTokenLen, ngramMin: p.NgramMin, ngramMax: p.NgramMax, stopWords: map[string]struct{}{}}
	for _, w := range p.StopWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			res.stopWords[w] = struct{}{}
		}
	}
	return res
}

// words returns lowercase tokens split on anything but letters, digits and underscore.
// tokens shorter than minLen runes and stop words are dropped.
func (t tokenizer) words(text string) []string {
	isSeparator := func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}
	fields := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	res := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < t.minLen {
			continue
		}
		if _, ok := t.stopWords[f]; ok {
			continue
		}
		res = append(res, f)
	}
	return res
}

// tokens returns n-grams for the configured range, n-gram words joined with a single space
func (t tokenizer) tokens(text string) []string {
	words := t.words(text)
	if t.ngramMin == 1 && t.ngramMax == 1 {
		return words
	}

	res := []string{}
	for n := t.ngramMin; n <= t.ngramMax; n++ {
		for i := 0; i+n <= len(words); i++ {
			res = append(res, strings.Join(words[i:i+n], " "))
		}
	}
	return res
}
