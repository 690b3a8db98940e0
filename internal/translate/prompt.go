package translate

import "fmt"

// promptTemplate asks for a bare translation with attention to clinical
// vocabulary. Arguments: source name, target name, text.
const promptTemplate = `Translate the following text from %s to %s. 
This may contain medical terminology, so ensure accuracy for medical terms.
Provide only the translation without any additional text or explanations.

Text: "%s"

Translation:`

// BuildPrompt renders the translation prompt for text between the two
// human-readable language names.
func BuildPrompt(text, sourceName, targetName string) string {
	return fmt.Sprintf(promptTemplate, sourceName, targetName, text)
}
