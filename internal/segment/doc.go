// Package segment implements voice-activity based utterance segmentation.
// It runs an amplitude-threshold state machine over fixed-size PCM frames
// and emits completed utterance buffers at silence, length-cap, short-phrase
// or input-stall boundaries, keeping a short trailing context across cuts.
package segment
