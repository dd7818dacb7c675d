package helper

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the and or but nor of to in on at by for from with without into onto
		over under about after before between through during as than then so if
		is are was were be been being am do does did done has have had having
		it its this that these those there here he she they them his her their
		we us our you your i me my mine not no yes can could will would shall should
		may might must also very just only such what which who whom whose when where
		why how much many s t d ll re ve`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether the lowercase token w carries no content.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize splits text into lowercase runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContentTokens returns the tokens of text that are not stopwords.
func ContentTokens(text string) []string {
	var out []string
	for _, tok := range Tokenize(text) {
		if !IsStopword(tok) {
			out = append(out, tok)
		}
	}
	return out
}
