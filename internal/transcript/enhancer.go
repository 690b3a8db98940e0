package transcript

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// wordPattern splits text into letter runs for the phonetic stage.
var wordPattern = regexp.MustCompile(`\p{L}+`)

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
	regex       bool
}

// EnhancerOption is a functional option for [NewEnhancer].
type EnhancerOption func(*Enhancer)

// WithPhoneticMatcher enables a sound-alike pass after the rules: every word
// that is not already a term is offered to m together with the single-word
// terms, and replaced when m reports a match. When nil (the default) the
// stage is skipped.
func WithPhoneticMatcher(m PhoneticMatcher) EnhancerOption {
	return func(e *Enhancer) {
		e.phonetic = m
	}
}

// Enhancer applies a validated [RuleSet] to transcript text and detects the
// domain terms it contains. It is immutable after construction and safe for
// concurrent use.
type Enhancer struct {
	rules []compiledRule
	terms []string

	phonetic      PhoneticMatcher
	phoneticTerms []string
	termSet       map[string]struct{}
}

// NewEnhancer compiles rs. Rule sets that fail [RuleSet.Validate] are
// rejected.
func NewEnhancer(rs RuleSet, opts ...EnhancerOption) (*Enhancer, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("transcript: invalid rule set: %w", err)
	}

	e := &Enhancer{
		rules:   make([]compiledRule, 0, len(rs.Rules)),
		terms:   make([]string, 0, len(rs.Terms)),
		termSet: make(map[string]struct{}, len(rs.Terms)),
	}
	for _, r := range rs.Rules {
		re, err := r.compile()
		if err != nil {
			// Unreachable after Validate.
			return nil, fmt.Errorf("transcript: compile rule %q: %w", r.Pattern, err)
		}
		e.rules = append(e.rules, compiledRule{re: re, replacement: r.Replacement, regex: r.Regex})
	}
	for _, t := range rs.Terms {
		if _, dup := e.termSet[t]; dup {
			continue
		}
		e.termSet[t] = struct{}{}
		e.terms = append(e.terms, t)
		if wordPattern.FindString(t) == t {
			e.phoneticTerms = append(e.phoneticTerms, t)
		}
	}

	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Enhance applies every rule in declaration order, each as a global
// case-insensitive replacement over the previous rule's output, then the
// optional phonetic pass. Text without matches is returned unchanged, and
// Enhance(Enhance(x)) == Enhance(x).
func (e *Enhancer) Enhance(raw string) string {
	out := raw
	for _, r := range e.rules {
		if r.regex {
			out = r.re.ReplaceAllString(out, r.replacement)
		} else {
			out = r.re.ReplaceAllLiteralString(out, r.replacement)
		}
	}
	if e.phonetic != nil && len(e.phoneticTerms) > 0 {
		out = wordPattern.ReplaceAllStringFunc(out, e.matchWord)
	}
	return out
}

// matchWord is the phonetic replacement for a single word. Words that already
// spell a term are kept, so a second pass changes nothing.
func (e *Enhancer) matchWord(word string) string {
	if _, ok := e.termSet[strings.ToLower(word)]; ok {
		return word
	}
	corrected, _, matched := e.phonetic.Match(word, e.phoneticTerms)
	if !matched {
		return word
	}
	if _, ok := e.termSet[strings.ToLower(corrected)]; !ok {
		// Matchers must answer with one of the offered terms.
		return word
	}
	if first, _ := utf8.DecodeRuneInString(word); unicode.IsUpper(first) {
		r, size := utf8.DecodeRuneInString(corrected)
		corrected = string(unicode.ToUpper(r)) + corrected[size:]
	}
	return corrected
}

// DetectTerms returns the terms contained in text (case-insensitive substring
// match), in declaration order and without duplicates. The result is never
// nil.
func (e *Enhancer) DetectTerms(text string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, t := range e.terms {
		if strings.Contains(lower, t) {
			found = append(found, t)
		}
	}
	return found
}

// Terms returns a copy of the canonical terms in declaration order.
func (e *Enhancer) Terms() []string {
	out := make([]string, len(e.terms))
	copy(out, e.terms)
	return out
}
