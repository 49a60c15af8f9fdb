package audio

import (
	"testing"
)

func testVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   4,
		FrameSize:       320,
	}
}

func constantFrame(n int, amplitude int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constantFrame(320, 5000)

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(samples)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !speechStarted {
			t.Error("Expected speech to start on first frame")
		}
		if i > 0 && speechStarted {
			t.Errorf("Speech must start only once, restarted on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	samples := constantFrame(320, 10)

	for i := 0; i < 15; i++ {
		isSpeaking, _, _ := vad.ProcessFrame(samples)
		if isSpeaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())

	for i := 0; i < 5; i++ {
		vad.ProcessFrame(constantFrame(320, 5000))
	}

	endedAt := -1
	for i := 0; i < 10; i++ {
		_, _, ended := vad.ProcessFrame(constantFrame(320, 10))
		if ended {
			endedAt = i
			break
		}
	}

	// SilenceFrames=4: the fourth silent frame ends speech
	if endedAt != 3 {
		t.Errorf("Expected speech to end on silent frame 3, got %d", endedAt)
	}
}

func TestVADDetector_Threshold(t *testing.T) {
	lowThreshold := NewVADDetector(&VADConfig{EnergyThreshold: 100.0, SilenceFrames: 4})
	highThreshold := NewVADDetector(&VADConfig{EnergyThreshold: 5000.0, SilenceFrames: 4})

	samples := constantFrame(320, 1000)

	if isSpeaking, _, _ := lowThreshold.ProcessFrame(samples); !isSpeaking {
		t.Error("Expected low threshold to detect speech")
	}
	if isSpeaking, _, _ := highThreshold.ProcessFrame(samples); isSpeaking {
		t.Error("Expected high threshold to not detect speech")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.ProcessFrame(constantFrame(320, 5000))

	if !vad.IsSpeaking() {
		t.Fatal("Expected speech to be detected")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected speech state to be false after reset")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 500.0 {
		t.Errorf("Expected default EnergyThreshold 500.0, got %f", config.EnergyThreshold)
	}
	if config.FrameSize != 2048 {
		t.Errorf("Expected default FrameSize 2048, got %d", config.FrameSize)
	}
}
