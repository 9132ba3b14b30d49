// Package server exposes the HTTP monitoring and display API: subtitle
// state, statistics, configuration, Prometheus metrics and a websocket
// feed of live pipeline events.
package server
