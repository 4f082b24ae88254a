package curriculum

// languageLevels maps a language register to the simplification
// instructions appended to authoring prompts. The math level is never
// simplified, only the prose around it.
var languageLevels = map[string]string{
	"standard": "",
	"b2": "LANGUAGE LEVEL B2: Short sentences (at most 15-20 words), one idea per sentence. " +
		"Common, concrete words; avoid idioms. " +
		"Explain technical terms the first time they appear. " +
		"Use the same word for the same concept throughout. " +
		"The mathematical level is UNCHANGED.",
	"b1": "LANGUAGE LEVEL B1: Very short sentences (at most 10-15 words). " +
		"Only the most common everyday words. " +
		"Explain ALL technical terms as if the student hears them for the first time. " +
		"Split complex exercises into steps: 'Step 1:', 'Step 2:'. " +
		"Add 'Tip:' where it helps. " +
		"The mathematical level is UNCHANGED.",
}

// LanguageInstructions returns the prompt block for a language
// register. Unknown registers get no extra instructions.
func LanguageInstructions(level string) string {
	return languageLevels[level]
}
