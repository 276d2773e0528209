// Package tokenizer provides text tokenisation for the search engine. It
// lower-cases input, splits on non-alphanumeric boundaries, drops
// single-character tokens, and applies a simple suffix-based stemmer.
//
// Stop words are flagged rather than removed: the index keeps them so that
// their postings exist for queries that retain stop words, and the query
// engine decides per query whether dropping them is safe.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single normalised term. Stop records whether the original word
// was a stop word, decided before stemming.
type Token struct {
	Term string
	Stop bool
}

// Tokenize breaks text into stemmed, lowercased tokens. Tokens shorter than
// two characters are dropped; stop words are kept and flagged.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		_, isStop := stopWords[word]
		stemmed := stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stemmed, Stop: isStop})
	}
	return tokens
}

// Terms returns just the term strings of tokens.
func Terms(tokens []Token) []string {
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// CountFrequencies computes the term -> occurrence count map for a token
// sequence.
func CountFrequencies(tokens []Token) map[string]int {
	frequencies := make(map[string]int, len(tokens))
	for _, t := range tokens {
		frequencies[t.Term]++
	}
	return frequencies
}

// TermSet tokenizes text and returns the set of distinct terms. Used for the
// tagged important-text tiers, where only membership matters.
func TermSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		set[t.Term] = struct{}{}
	}
	return set
}

// StopTerms returns the stemmed form of every stop word that survives
// tokenisation. The query engine precaches postings for these terms.
func StopTerms() []string {
	terms := make([]string, 0, len(stopWords))
	seen := make(map[string]struct{}, len(stopWords))
	for word := range stopWords {
		for _, t := range Tokenize(word) {
			if _, dup := seen[t.Term]; dup {
				continue
			}
			seen[t.Term] = struct{}{}
			terms = append(terms, t.Term)
		}
	}
	return terms
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
