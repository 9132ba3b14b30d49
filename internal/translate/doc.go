// Package translate turns recognized phrases into their translation
// through a local Ollama instance. A single worker drains a bounded FIFO
// queue so translation latency never blocks recognition, and results are
// reported through a callback together with the original text so the
// display layer can discard stale ones.
package translate
