// Package pipeline wires capture, segmentation, recognition and
// translation together. Frames flow from the capture source through the
// segmenter on a single goroutine; recognition happens inline on that
// goroutine so utterances stay strictly ordered, while translation runs
// behind a queue and catches up asynchronously.
package pipeline
