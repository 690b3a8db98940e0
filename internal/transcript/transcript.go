// Package transcript turns streaming speech-recognition output into the
// cleaned-up dictation text shown to the clinician.
//
// Raw recogniser output is rarely right for clinical vocabulary: drug names
// and conditions are split, misheard or spelled the way they sound. Two
// pieces handle this:
//
//   - [Enhancer] rewrites text with an ordered [RuleSet] of corrections
//     (optionally followed by a [PhoneticMatcher] pass) and reports which
//     canonical domain terms the text contains.
//   - [Accumulator] merges a stream of recognition events into an
//     append-only finalized buffer plus a replaceable interim buffer, and
//     pushes the enhanced display text to observers after every change.
//
// Both are safe for concurrent use.
package transcript

// PhoneticMatcher resolves a single word to a known term based on
// pronunciation similarity. It is designed to be fast enough for real-time
// use: no network calls, no model round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the term from terms that is most phonetically
	// similar to word.
	//
	// Return values:
	//   corrected:  the best-matching term from terms.
	//   confidence: similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched:    true when a sufficiently similar term was found.
	//
	// When matched is false, corrected must equal word unchanged and confidence
	// must be 0.
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}
