// Package subtitle keeps the two-line display state: the current
// utterance and the one before it, each paired with its translation.
// Translations arrive asynchronously and possibly out of order, so every
// incoming result is matched against the current original text and
// silently discarded when it no longer applies.
package subtitle
