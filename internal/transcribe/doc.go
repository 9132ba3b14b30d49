// Package transcribe sends closed utterance buffers to a speech
// recognition backend and returns the recognized text. Two backends are
// supported: a local whisper-server speaking multipart HTTP, and the
// OpenAI audio transcription API.
package transcribe
