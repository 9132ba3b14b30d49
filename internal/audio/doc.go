// Package audio provides the PCM frame type and audio math shared by the
// capture and segmentation layers, plus WAV encoding for handing completed
// utterances to transcription backends.
package audio
