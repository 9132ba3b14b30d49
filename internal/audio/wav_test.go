package audio

import (
	"os"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	pcm := Bytes([]int16{100, -100, 200, -200})

	wav, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(wav) != 44+len(pcm) {
		t.Errorf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Error("Missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		t.Error("Missing WAVE format")
	}
}

func TestEncodeWAVRejectsInvalidInput(t *testing.T) {
	if _, err := EncodeWAV(nil, SampleRate); err == nil {
		t.Error("Expected error for empty audio data")
	}
	if _, err := EncodeWAV([]byte{1, 2, 3}, SampleRate); err == nil {
		t.Error("Expected error for odd-length data")
	}
	if _, err := EncodeWAV([]byte{1, 2}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := Bytes([]int16{0, 1000, -1000, 32767, -32768})

	wav, err := EncodeWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, rate)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", len(pcm), len(decoded))
	}
	for i := range pcm {
		if decoded[i] != pcm[i] {
			t.Fatalf("Byte %d: expected %d, got %d", i, pcm[i], decoded[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
		t.Error("Expected error for short data")
	}

	wav, _ := EncodeWAV(Bytes([]int16{1, 2}), SampleRate)
	wav[0] = 'X' // corrupt the RIFF marker
	if _, _, err := DecodeWAV(wav); err == nil {
		t.Error("Expected error for corrupted header")
	}
}

func TestWriteTempWAV(t *testing.T) {
	pcm := Bytes([]int16{100, 200, 300, 400})

	path, err := WriteTempWAV(pcm, SampleRate)
	if err != nil {
		t.Fatalf("WriteTempWAV failed: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read temp file: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Temp file is not valid WAV: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, rate)
	}
	if len(decoded) != len(pcm) {
		t.Errorf("Expected %d PCM bytes, got %d", len(pcm), len(decoded))
	}
}
