package qa

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"book-reader/internal/helper"
)

// answerKind is the kind of phrase a question asks for.
type answerKind int

const (
	kindAny answerKind = iota
	kindName
	kindNumber
)

var (
	connectors = map[string]bool{"of": true, "the": true, "and": true, "de": true, "la": true, "le": true, "du": true, "des": true, "del": true, "von": true, "van": true}
	// number words count as numeric tokens
	numberWords = map[string]bool{
		"zero": true, "one": true, "two": true, "three": true, "four": true, "five": true, "six": true,
		"seven": true, "eight": true, "nine": true, "ten": true, "eleven": true, "twelve": true,
		"twenty": true, "thirty": true, "forty": true, "fifty": true, "hundred": true, "thousand": true,
		"million": true, "billion": true, "dozen": true,
	}
)

// LexicalReader is a local extractive reader. It picks the sentence sharing
// the most content terms with the question and returns the phrase in it that
// best fits the question type and is not part of the question.
type LexicalReader struct{}

func NewLexicalReader() *LexicalReader { return &LexicalReader{} }

type token struct {
	norm       string
	start, end int
	upper      bool
	numeric    bool
	stop       bool
}

type sentence struct {
	start, end int
	tokens     []token
}

type phrase struct {
	start, end int // token indexes, end exclusive
	kind       answerKind
}

func (LexicalReader) Extract(ctx context.Context, question, text string) (Span, error) {
	if err := ctx.Err(); err != nil {
		return Span{}, err
	}
	terms := questionTerms(question)
	if len(terms) == 0 {
		return Span{}, nil
	}
	want := expectedKind(question)

	type scored struct {
		s     sentence
		score float64
	}
	var ranked []scored
	for _, s := range splitSentences(text) {
		matched := map[string]bool{}
		for _, t := range s.tokens {
			if terms[t.norm] {
				matched[t.norm] = true
			}
		}
		if len(matched) == 0 {
			continue
		}
		ranked = append(ranked, scored{s: s, score: float64(len(matched)) / float64(len(terms))})
	}
	if len(ranked) == 0 {
		return Span{}, nil
	}
	// stable: earlier sentences come from nearer chunks
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	for _, r := range ranked {
		p, fit, ok := bestPhrase(text, r.s, terms, want)
		if !ok {
			continue
		}
		toks := r.s.tokens
		return Span{Start: toks[p.start].start, End: toks[p.end-1].end, Confidence: r.score * fit}, nil
	}

	// every word of the matching sentences is in the question
	best := ranked[0].s
	return Span{Start: best.start, End: best.end, Confidence: ranked[0].score * 0.25}, nil
}

func stem(w string) string {
	w = strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "’s")
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

func questionTerms(question string) map[string]bool {
	terms := map[string]bool{}
	for _, tok := range helper.ContentTokens(question) {
		terms[stem(tok)] = true
	}
	return terms
}

func expectedKind(question string) answerKind {
	toks := helper.Tokenize(question)
	for i, t := range toks {
		switch t {
		case "who", "whom", "whose", "where":
			return kindName
		case "when":
			return kindNumber
		case "how":
			if i+1 < len(toks) {
				switch toks[i+1] {
				case "many", "much", "long", "old", "far", "often":
					return kindNumber
				}
			}
		case "what", "which":
			return kindAny
		}
	}
	return kindAny
}

func fitOf(want, got answerKind) float64 {
	switch want {
	case kindName:
		switch got {
		case kindName:
			return 1
		case kindNumber:
			return 0.3
		}
		return 0.5
	case kindNumber:
		switch got {
		case kindNumber:
			return 1
		case kindName:
			return 0.6
		}
		return 0.3
	}
	switch got {
	case kindName:
		return 1
	case kindNumber:
		return 0.9
	}
	return 0.8
}

// splitSentences breaks text at sentence punctuation followed by a space and
// at line breaks. Offsets are bytes into text.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	flush := func(end int) {
		seg := text[start:end]
		trimmed := strings.TrimSpace(seg)
		if trimmed != "" {
			s := start + strings.Index(seg, trimmed)
			sent := sentence{start: s, end: s + len(trimmed)}
			sent.tokens = tokenize(text, sent.start, sent.end)
			if len(sent.tokens) > 0 {
				out = append(out, sent)
			}
		}
		start = end
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size
		switch {
		case r == '\n':
			flush(i)
			start = next
		case r == '.' || r == '!' || r == '?':
			if next == len(text) {
				break
			}
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(nr) {
				flush(next)
			}
		}
		i = next
	}
	if start < len(text) {
		flush(len(text))
	}
	return out
}

// tokenize returns the words of text[from:to]. Apostrophes and hyphens
// between letters stay inside a word.
func tokenize(text string, from, to int) []token {
	var toks []token
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	i := from
	for i < to {
		r, size := utf8.DecodeRuneInString(text[i:to])
		if !isWord(r) {
			i += size
			continue
		}
		start := i
		for i < to {
			r, size := utf8.DecodeRuneInString(text[i:to])
			if isWord(r) {
				i += size
				continue
			}
			if (r == '-' || r == '\'' || r == '’') && i+size < to {
				nr, _ := utf8.DecodeRuneInString(text[i+size : to])
				if isWord(nr) && i > start {
					i += size
					continue
				}
			}
			break
		}
		word := text[start:i]
		first, _ := utf8.DecodeRuneInString(word)
		lower := strings.ToLower(word)
		numeric := numberWords[lower]
		for _, c := range word {
			if unicode.IsDigit(c) {
				numeric = true
				break
			}
		}
		toks = append(toks, token{
			norm:    stem(lower),
			start:   start,
			end:     i,
			upper:   unicode.IsUpper(first),
			numeric: numeric,
			stop:    helper.IsStopword(lower),
		})
	}
	return toks
}

func kindOfToken(t token) answerKind {
	switch {
	case t.numeric:
		return kindNumber
	case t.upper:
		return kindName
	}
	return kindAny
}

// bestPhrase returns the candidate phrase of s with the best type fit, then
// the one closest to a question term, then the earliest.
func bestPhrase(text string, s sentence, terms map[string]bool, want answerKind) (phrase, float64, bool) {
	toks := s.tokens
	candidate := func(t token) bool { return !t.stop && !terms[t.norm] }
	adjacent := func(i, j int) bool {
		return strings.TrimSpace(text[toks[i].end:toks[j].start]) == ""
	}

	var phrases []phrase
	for i := 0; i < len(toks); {
		if !candidate(toks[i]) {
			i++
			continue
		}
		kind := kindOfToken(toks[i])
		j := i + 1
		for j < len(toks) && adjacent(j-1, j) {
			t := toks[j]
			if candidate(t) && (joins(kind, kindOfToken(t)) || isUnit(toks[j-1], t)) {
				j++
				continue
			}
			// connectors join two names: "Bay of Bengal"
			if kind == kindName && connectors[strings.ToLower(text[t.start:t.end])] &&
				j+1 < len(toks) && adjacent(j, j+1) && candidate(toks[j+1]) && toks[j+1].upper {
				j += 2
				continue
			}
			break
		}
		p := phrase{start: i, end: j, kind: kind}
		for k := i; k < j; k++ {
			if toks[k].numeric {
				p.kind = kindNumber
			}
		}
		phrases = append(phrases, p)
		i = j
	}
	if len(phrases) == 0 {
		return phrase{}, 0, false
	}

	var qpos []int
	for i, t := range toks {
		if terms[t.norm] {
			qpos = append(qpos, i)
		}
	}
	distance := func(p phrase) int {
		best := len(toks)
		for _, q := range qpos {
			d := p.start - q
			if q >= p.end {
				d = q - p.end + 1
			}
			if d < 0 {
				d = -d
			}
			best = min(best, d)
		}
		return best
	}

	best, bestFit, bestDist := phrases[0], fitOf(want, phrases[0].kind), distance(phrases[0])
	for _, p := range phrases[1:] {
		fit, dist := fitOf(want, p.kind), distance(p)
		if fit > bestFit || (fit == bestFit && dist < bestDist) {
			best, bestFit, bestDist = p, fit, dist
		}
	}
	return best, bestFit, true
}

// isUnit reports whether t is a plain word measuring the number before it,
// as in "100 degrees".
func isUnit(prev, t token) bool {
	return prev.numeric && kindOfToken(t) == kindAny
}

// joins reports whether a token of kind next extends a phrase of kind cur.
func joins(cur, next answerKind) bool {
	switch cur {
	case kindName:
		return next == kindName || next == kindNumber
	case kindNumber:
		return next == kindNumber || next == kindName
	}
	return next == kindAny
}
