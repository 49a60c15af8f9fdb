package state

import (
	"sync"
	"testing"
)

func TestSpeechState_BeginEnd(t *testing.T) {
	s := New()

	if snap := s.Snapshot(); snap.Speaking || snap.LastSpokenText != "" {
		t.Fatalf("Expected idle state, got %+v", snap)
	}

	s.Begin("Hello there.")
	snap := s.Snapshot()
	if !snap.Speaking || snap.LastSpokenText != "Hello there." {
		t.Errorf("Expected speaking with text, got %+v", snap)
	}

	s.End()
	if snap := s.Snapshot(); snap.Speaking || snap.LastSpokenText != "" {
		t.Errorf("Expected End to clear both fields, got %+v", snap)
	}
}

func TestSpeechState_ViewIsReadOnly(t *testing.T) {
	var v View = New()
	if v.Snapshot().Speaking {
		t.Error("Expected new state to be idle")
	}
}

// Readers must never observe text without speaking, or speaking with a
// text from a different Begin.
func TestSpeechState_SnapshotConsistency(t *testing.T) {
	s := New()
	texts := []string{"alpha", "beta", "gamma"}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			s.Begin(texts[i%len(texts)])
			s.End()
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				if !snap.Speaking && snap.LastSpokenText != "" {
					t.Errorf("Observed text %q while not speaking", snap.LastSpokenText)
					return
				}
				if snap.Speaking && snap.LastSpokenText == "" {
					t.Error("Observed speaking without text")
					return
				}
			}
		}()
	}

	wg.Wait()
}
