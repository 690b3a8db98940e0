package translate

import (
	"fmt"
	"strings"
)

// Language is one entry of the supported language table.
type Language struct {
	// SpeechCode is the BCP-47 tag handed to the recognizer (e.g. "en-US").
	SpeechCode string `json:"speech_code"`
	// DisplayName is the human-readable name used in prompts and the UI.
	DisplayName string `json:"display_name"`
	// ModelCode is the ISO 639-1 code the translation model is addressed with.
	ModelCode string `json:"model_code"`
	// Flag is the emoji shown next to the language in the UI.
	Flag string `json:"flag"`
}

var languages = []Language{
	{SpeechCode: "en-US", DisplayName: "English (US)", ModelCode: "en", Flag: "🇺🇸"},
	{SpeechCode: "es-ES", DisplayName: "Spanish", ModelCode: "es", Flag: "🇪🇸"},
	{SpeechCode: "zh-CN", DisplayName: "Chinese (Mandarin)", ModelCode: "zh", Flag: "🇨🇳"},
	{SpeechCode: "hi-IN", DisplayName: "Hindi", ModelCode: "hi", Flag: "🇮🇳"},
	{SpeechCode: "ar-SA", DisplayName: "Arabic", ModelCode: "ar", Flag: "🇸🇦"},
	{SpeechCode: "fr-FR", DisplayName: "French", ModelCode: "fr", Flag: "🇫🇷"},
	{SpeechCode: "ru-RU", DisplayName: "Russian", ModelCode: "ru", Flag: "🇷🇺"},
	{SpeechCode: "pt-BR", DisplayName: "Portuguese", ModelCode: "pt", Flag: "🇧🇷"},
	{SpeechCode: "ja-JP", DisplayName: "Japanese", ModelCode: "ja", Flag: "🇯🇵"},
	{SpeechCode: "ko-KR", DisplayName: "Korean", ModelCode: "ko", Flag: "🇰🇷"},
}

// Languages returns a copy of the supported language table in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LookupSpeechCode returns the table entry for a recognizer tag. Matching is
// case-insensitive.
func LookupSpeechCode(speech string) (Language, bool) {
	for _, l := range languages {
		if strings.EqualFold(l.SpeechCode, speech) {
			return l, true
		}
	}
	return Language{}, false
}

// ResolveModelCode maps a recognizer tag to the model's language code. Unknown
// tags yield an *Error of kind UnknownLanguage.
func ResolveModelCode(speech string) (string, error) {
	l, ok := LookupSpeechCode(speech)
	if !ok {
		return "", &Error{
			Kind:    UnknownLanguage,
			Message: fmt.Sprintf("Unsupported language %q.", speech),
		}
	}
	return l.ModelCode, nil
}

// DisplayName returns the human-readable name for a model code, or the code
// itself when it is not in the table.
func DisplayName(model string) string {
	for _, l := range languages {
		if strings.EqualFold(l.ModelCode, model) {
			return l.DisplayName
		}
	}
	return model
}
