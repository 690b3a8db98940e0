package phonetic_test

import (
	"testing"

	"github.com/MrWong99/medscribe/internal/transcript/phonetic"
)

var terms = []string{"hypertension", "pneumonia", "diabetes", "metformin", "asthma"}

func TestMatcher_SoundsLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want string
	}{
		{word: "hipertension", want: "hypertension"},
		{word: "numonia", want: "pneumonia"},
		{word: "diabetis", want: "diabetes"},
		{word: "Metforman", want: "metformin"},
	}

	m := phonetic.New()
	for _, tc := range tests {
		t.Run(tc.word, func(t *testing.T) {
			t.Parallel()
			corrected, conf, matched := m.Match(tc.word, terms)
			if !matched {
				t.Fatalf("Match(%q): matched=false, want true", tc.word)
			}
			if corrected != tc.want {
				t.Errorf("Match(%q): corrected=%q, want %q", tc.word, corrected, tc.want)
			}
			if conf < 0.8 {
				t.Errorf("Match(%q): confidence=%f, want >= 0.8", tc.word, conf)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	for _, word := range []string{"hello", "patient", "yesterday"} {
		corrected, conf, matched := m.Match(word, terms)
		if matched {
			t.Errorf("Match(%q): matched=true (%q), want false", word, corrected)
			continue
		}
		if corrected != word {
			t.Errorf("Match(%q): corrected=%q, want original word", word, corrected)
		}
		if conf != 0 {
			t.Errorf("Match(%q): confidence=%f, want 0", word, conf)
		}
	}
}

func TestMatcher_ShortWordsIgnored(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if _, _, matched := m.Match("azma", terms); matched {
		t.Error("expected words below the minimum length to be ignored")
	}

	m = phonetic.New(phonetic.WithMinLength(2))
	if _, _, matched := m.Match("asma", []string{"asthma"}); !matched {
		t.Error("expected match once the minimum length is lowered")
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("DIABETES", terms)
	if !matched {
		t.Fatal("Match(DIABETES): matched=false, want true")
	}
	if corrected != "diabetes" {
		t.Errorf("corrected=%q, want %q", corrected, "diabetes")
	}
	if conf < 0.99 {
		t.Errorf("confidence=%f, want ~1 for an exact match", conf)
	}
}

func TestMatcher_ThresholdFiltering(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.999),
		phonetic.WithFuzzyThreshold(0.999),
	)
	if _, _, matched := m.Match("numonia", terms); matched {
		t.Fatal("Match with threshold=0.999 should reject near-matches, got matched=true")
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if corrected, conf, matched := m.Match("numonia", nil); matched || corrected != "numonia" || conf != 0 {
		t.Errorf("nil terms: got (%q, %f, %v)", corrected, conf, matched)
	}
	if corrected, conf, matched := m.Match("", terms); matched || corrected != "" || conf != 0 {
		t.Errorf("empty word: got (%q, %f, %v)", corrected, conf, matched)
	}
}

func TestPrepareTerms(t *testing.T) {
	t.Parallel()

	ts := phonetic.PrepareTerms([]string{"asthma", "  ", ""})
	if ts.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ts.Len())
	}
	m := phonetic.New()
	if corrected, _, matched := m.MatchPrepared("asthmah", ts); !matched || corrected != "asthma" {
		t.Errorf("MatchPrepared(asthmah) = (%q, %v), want (asthma, true)", corrected, matched)
	}
}
