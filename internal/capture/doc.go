// Package capture pulls fixed-size PCM frames from an audio input device.
// Frames are pushed onto a bounded queue without ever blocking the producer;
// when downstream processing falls behind, frames are dropped and counted.
package capture
