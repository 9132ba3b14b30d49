package translate

import "strings"

// responsePrefixes lists the boilerplate openings small instruction-tuned
// models like to prepend to a translation. Order matters: the first match
// wins and exactly one prefix is stripped per response.
var responsePrefixes = []string{
	"以下英文翻译成中文：", "以下中文翻译成英文：",
	"翻译：", "Translation:", ":", "：",
	"Translate this English to Chinese:", "Translate this Chinese to English:",
	"Translate to Chinese:", "Translate to English:",
	"中文翻译：", "英文翻译：",
	"Here is the translation:", "The translation is:",
	"好的，", "Okay,", "嗯，", "Certainly,",
}

// CleanResponse strips model boilerplate from a raw completion and trims
// the surrounding whitespace. Cleaning an already clean string returns it
// unchanged.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)

	for _, prefix := range responsePrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}

	return text
}

// BuildPrompt constructs the translation prompt for a recognized phrase.
// Chinese source text goes to English; everything else goes to Chinese.
func BuildPrompt(text, sourceLanguage string) string {
	if sourceLanguage == "zh" {
		return "Translate this Chinese to English: " + text
	}
	return "Translate this to Chinese: " + text
}
