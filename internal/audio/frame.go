package audio

import (
	"fmt"
	"time"
)

// Format constants for the capture feed: mono 16-bit signed PCM at 16 kHz,
// delivered in fixed-size frames of 1024 samples.
const (
	SampleRate     = 16000
	FrameSamples   = 1024
	BytesPerSample = 2
	FrameBytes     = FrameSamples * BytesPerSample
)

// FrameDuration is the wall-clock span covered by one frame (64ms at 16kHz).
const FrameDuration = time.Duration(FrameSamples) * time.Second / SampleRate

// Frame is one fixed-size block of raw PCM pulled from the input device.
// Seq is the frame's ordinal position in the stream. Frames are immutable
// once produced; the segmenter owns them after consuming the capture queue.
type Frame struct {
	Data []byte
	Seq  uint64
}

// NewFrame copies raw PCM bytes into a Frame. The length must match the
// fixed frame size so downstream duration math stays exact.
func NewFrame(seq uint64, data []byte) (Frame, error) {
	if len(data) != FrameBytes {
		return Frame{}, fmt.Errorf("frame must be %d bytes, got %d", FrameBytes, len(data))
	}
	buf := make([]byte, FrameBytes)
	copy(buf, data)
	return Frame{Data: buf, Seq: seq}, nil
}

// Volume returns the mean absolute sample value of the frame, the amplitude
// magnitude used for voice-activity thresholding.
func (f Frame) Volume() int {
	return MeanAbs(f.Data)
}

// MeanAbs computes the mean absolute int16 sample value of little-endian
// PCM bytes. Returns 0 for empty or odd-length input.
func MeanAbs(pcm []byte) int {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if s < 0 {
			// math.MinInt16 negates to itself; clamp to the positive range
			if s == -32768 {
				s = 32767
			} else {
				s = -s
			}
		}
		sum += int64(s)
	}
	return int(sum / int64(n))
}

// Samples decodes little-endian PCM bytes into int16 samples.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// Bytes encodes int16 samples into little-endian PCM bytes.
func Bytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(uint16(s) >> 8)
	}
	return pcm
}

// DurationOf returns the play time of a PCM byte slice at the fixed rate.
func DurationOf(pcm []byte) time.Duration {
	samples := len(pcm) / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}
