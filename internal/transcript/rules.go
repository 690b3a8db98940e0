package transcript

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CorrectionRule rewrites one known mis-transcription into its canonical form.
//
// Literal patterns match case-insensitively on word boundaries, so "azma"
// rewrites "azma" but not "plazmatic". Regex patterns are compiled
// case-insensitively and used as written; their replacement may reference
// capture groups ($1).
type CorrectionRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Regex       bool   `yaml:"regex"`
}

// RuleSet is an ordered list of correction rules plus the canonical domain
// terms used for detection. Rules apply in declaration order, each over the
// output of the previous one. Terms are lowercase; detection reports them in
// declaration order.
type RuleSet struct {
	Rules []CorrectionRule `yaml:"rules"`
	Terms []string         `yaml:"terms"`
}

// Merge returns a new RuleSet with other's rules appended after rs's rules
// and other's terms appended after rs's terms. Duplicate terms are dropped.
func (rs RuleSet) Merge(other RuleSet) RuleSet {
	out := RuleSet{
		Rules: make([]CorrectionRule, 0, len(rs.Rules)+len(other.Rules)),
		Terms: make([]string, 0, len(rs.Terms)+len(other.Terms)),
	}
	out.Rules = append(out.Rules, rs.Rules...)
	out.Rules = append(out.Rules, other.Rules...)
	seen := make(map[string]struct{}, len(rs.Terms)+len(other.Terms))
	for _, t := range append(append([]string{}, rs.Terms...), other.Terms...) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out.Terms = append(out.Terms, t)
	}
	return out
}

// Validate checks that every rule compiles and that the set is idempotent in
// practice: no rule pattern may match any rule replacement or any term, so a
// corrected form is never rewritten again. Terms must be non-empty and
// lowercase. All problems are reported together.
func (rs RuleSet) Validate() error {
	var errs []error

	compiled := make([]*regexp.Regexp, len(rs.Rules))
	for i, r := range rs.Rules {
		re, err := r.compile()
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err))
			continue
		}
		compiled[i] = re
	}

	for i, t := range rs.Terms {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, fmt.Errorf("term %d is empty", i))
			continue
		}
		if t != strings.ToLower(t) {
			errs = append(errs, fmt.Errorf("term %d (%q) must be lowercase", i, t))
		}
	}

	for i, re := range compiled {
		if re == nil {
			continue
		}
		for j, r := range rs.Rules {
			if re.MatchString(r.Replacement) {
				errs = append(errs, fmt.Errorf("rule %d (%q) matches the replacement of rule %d (%q)",
					i, rs.Rules[i].Pattern, j, r.Replacement))
			}
		}
		for _, t := range rs.Terms {
			if re.MatchString(t) {
				errs = append(errs, fmt.Errorf("rule %d (%q) matches term %q", i, rs.Rules[i].Pattern, t))
			}
		}
	}

	return errors.Join(errs...)
}

// compile turns the rule into a case-insensitive regular expression.
func (r CorrectionRule) compile() (*regexp.Regexp, error) {
	if strings.TrimSpace(r.Pattern) == "" {
		return nil, errors.New("pattern is empty")
	}
	if r.Regex {
		return regexp.Compile("(?i)" + r.Pattern)
	}
	expr := regexp.QuoteMeta(r.Pattern)
	// \b only anchors next to word characters; a pattern that starts or ends
	// with punctuation is left open on that side.
	if first, _ := utf8.DecodeRuneInString(r.Pattern); isWordRune(first) {
		expr = `\b` + expr
	}
	if last, _ := utf8.DecodeLastRuneInString(r.Pattern); isWordRune(last) {
		expr += `\b`
	}
	return regexp.Compile("(?i)" + expr)
}

func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
