package transcribe

import "strings"

// cleanText trims the whitespace recognition backends like to pad
// responses with.
func cleanText(text string) string {
	return strings.TrimSpace(text)
}

// isNoSpeech reports whether recognized text is too short to be a real
// phrase. Single characters are almost always breath noise or a hallucinated
// punctuation mark.
func isNoSpeech(text string) bool {
	return len([]rune(text)) <= 1
}
