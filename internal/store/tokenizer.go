package store

import (
	"strings"
	"unicode"
)

// Token is a lowercase term with its byte span in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// TokenizeSpans splits text into runs of letters and digits, lowercased.
// Runs shorter than minLen runes are dropped.
func TokenizeSpans(text string, minLen int) []Token {
	var tokens []Token
	start := -1
	runes := 0

	flush := func(end int) {
		if start >= 0 && runes >= minLen {
			tokens = append(tokens, Token{
				Term:  strings.ToLower(text[start:end]),
				Start: start,
				End:   end,
			})
		}
		start = -1
		runes = 0
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(text))

	return tokens
}

// Tokenize returns just the terms of TokenizeSpans.
func Tokenize(text string, minLen int) []string {
	spans := TokenizeSpans(text, minLen)
	terms := make([]string, len(spans))
	for i, t := range spans {
		terms[i] = t.Term
	}
	return terms
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
