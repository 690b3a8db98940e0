// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// It targets the typical failure of speech recognisers on clinical
// vocabulary: a term that is heard correctly but spelled the way it sounds
// ("hipertension", "numonia", "diabetis"). The algorithm proceeds in two
// stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input word and for each known term. If any code from the input
//     overlaps with any code from a term, the term becomes a phonetic
//     candidate.
//
//  2. Jaro-Winkler ranking: Among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (case-insensitive) is selected,
//     provided its score reaches the phonetic threshold.
//
//     When no phonetic candidate is found, a secondary pass tests pure
//     Jaro-Winkler similarity against all terms using a higher fuzzy
//     threshold (default 0.90).
//
// Words shorter than the minimum length (default 5 runes) never match; short
// function words collide with too many codes to be useful.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.88
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 5
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.88.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinLength sets the minimum word length, in runes, considered for
// matching. Default: 5.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		m.minLength = n
	}
}

// Matcher is a phonetic term matcher. It implements [transcript.PhoneticMatcher].
// All methods are safe for concurrent use; the Matcher is read-only after
// construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match attempts to find the term from terms that is most phonetically
// similar to word. Only the first whitespace-separated token of word is
// considered.
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, PrepareTerms(terms))
}

// MatchPrepared is Match against a precomputed [TermSet]. Use it when the
// same term list is matched against many words.
func (m *Matcher) MatchPrepared(word string, ts *TermSet) (corrected string, confidence float64, matched bool) {
	fields := strings.Fields(strings.ToLower(word))
	if ts == nil || len(ts.terms) == 0 || len(fields) == 0 {
		return word, 0, false
	}
	input := fields[0]
	if utf8.RuneCountInString(input) < m.minLength {
		return word, 0, false
	}
	inputCodes := codesFor(input)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range ts.terms {
		score := matchr.JaroWinkler(input, t.lower, false)
		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.term, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.term, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// TermSet is a term list with precomputed phonetic codes.
type TermSet struct {
	terms []preparedTerm
}

type preparedTerm struct {
	term  string
	lower string
	codes map[string]struct{}
}

// PrepareTerms computes phonetic codes for every non-empty term.
func PrepareTerms(terms []string) *TermSet {
	ts := &TermSet{terms: make([]preparedTerm, 0, len(terms))}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		ts.terms = append(ts.terms, preparedTerm{term: t, lower: lower, codes: codesFor(lower)})
	}
	return ts
}

// Len returns the number of prepared terms.
func (ts *TermSet) Len() int { return len(ts.terms) }

// codesFor returns the Double Metaphone codes of word. Empty codes (produced
// when the word contains no consonants) are excluded.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
