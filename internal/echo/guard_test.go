package echo

import (
	"testing"

	"github.com/lexiqai/misa/internal/state"
)

func speaking(text string) state.Snapshot {
	return state.Snapshot{Speaking: true, LastSpokenText: text}
}

func TestGuard_ShouldAccept(t *testing.T) {
	g := NewGuard(0.8, nil)

	tests := []struct {
		name      string
		candidate string
		snap      state.Snapshot
		want      Decision
	}{
		{"idle accepts anything", "what time is it", state.Snapshot{}, Accept},
		{"idle accepts echo-like text", "Sure, here you go.", state.Snapshot{}, Accept},
		{"exact echo", "sure here you go", speaking("Sure, here you go."), RejectEcho},
		{"near echo", "the weather is sunny today", speaking("The weather is sunny today."), RejectEcho},
		{"unrelated noise", "turn it up", speaking("The weather is sunny today."), RejectNoise},
		{"wake marker", "misa stop", speaking("The weather is sunny today."), Accept},
		{"stop marker any case", "SHUT UP please", speaking("The weather is sunny today."), Accept},
		{"echo wins over marker", "I am Misa, your assistant", speaking("I am Misa, your assistant."), RejectEcho},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.ShouldAccept(tt.candidate, tt.snap); got != tt.want {
				t.Errorf("ShouldAccept(%q) = %s, want %s", tt.candidate, got, tt.want)
			}
		})
	}
}

// A phrase at or above the threshold is never accepted while speaking.
func TestGuard_EchoNeverAcceptedWhileSpeaking(t *testing.T) {
	g := NewGuard(0.8, nil)
	spoken := []string{"Hello.", "Misa here, what do you need?", "Okay.", "I couldn't process that."}

	for _, s := range spoken {
		if d := g.ShouldAccept(s, speaking(s)); d == Accept {
			t.Errorf("Echo of %q accepted", s)
		}
	}
}

func TestGuard_CustomMarkers(t *testing.T) {
	g := NewGuard(0.8, []string{"  Computer "})

	if !g.HasWakeMarker("hey computer") {
		t.Error("Expected normalized custom marker to match")
	}
	if g.HasWakeMarker("misa") {
		t.Error("Default markers must not apply when custom ones are set")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b     string
		min, max float64
	}{
		{"", "", 1, 1},
		{"abc", "abc", 1, 1},
		{"ABC", "abc", 1, 1},
		{"abc", "", 0, 0},
		{"abcd", "abcx", 0.75, 0.75},
		{"kitten", "sitting", 0.57, 0.58},
	}

	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %.3f, want in [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
		if rev := Similarity(tt.b, tt.a); rev != got {
			t.Errorf("Similarity not symmetric for %q/%q", tt.a, tt.b)
		}
	}
}

func TestDecision_String(t *testing.T) {
	if RejectEcho.String() != "reject_echo" || Accept.String() != "accept" || RejectNoise.String() != "reject_noise" {
		t.Error("Unexpected decision labels")
	}
}
