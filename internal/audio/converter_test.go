package audio

import (
	"math"
	"testing"
)

func TestBytesToSamples(t *testing.T) {
	samples, err := BytesToSamples([]byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80})
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}

	expected := []int16{0, 32767, -32768}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i, exp := range expected {
		if samples[i] != exp {
			t.Errorf("Expected sample %d at index %d, got %d", exp, i, samples[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestSamplesToBytes(t *testing.T) {
	out := SamplesToBytes([]int16{0, 32767, -32768})

	expected := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	if len(out) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(out))
	}
	for i, exp := range expected {
		if out[i] != exp {
			t.Errorf("Expected byte %d at index %d, got %d", exp, i, out[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	// sqrt((1000^2 + 1000^2 + 2000^2 + 2000^2) / 4)
	expected := math.Sqrt((1000000 + 1000000 + 4000000 + 4000000) / 4.0)
	if math.Abs(rms-expected) > 0.1 {
		t.Errorf("Expected RMS %.2f, got %.2f", expected, rms)
	}
}

func TestCalculateRMS_Empty(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0.0 {
		t.Errorf("Expected RMS 0.0 for empty slice, got %.2f", rms)
	}
}

func TestFrameDuration(t *testing.T) {
	if d := FrameDuration(48000, 24000, 2); d != 1.0 {
		t.Errorf("Expected 1.0s, got %v", d)
	}
	if d := FrameDuration(100, 0, 1); d != 0 {
		t.Errorf("Expected 0 for invalid rate, got %v", d)
	}
}
