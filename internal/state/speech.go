// Package state holds the assistant's shared speech status.
//
// SpeechState has exactly one writer (the dialogue loop). Everything else
// reads it through a View, which only exposes consistent snapshots.
package state

import "sync"

// Snapshot is a consistent read of the speech state
type Snapshot struct {
	Speaking       bool
	LastSpokenText string
}

// View is the read-only side of SpeechState
type View interface {
	Snapshot() Snapshot
}

// SpeechState records whether the assistant is speaking and what it said.
// LastSpokenText is non-empty only while Speaking is true.
type SpeechState struct {
	mu       sync.RWMutex
	speaking bool
	text     string
}

// New returns an idle speech state
func New() *SpeechState {
	return &SpeechState{}
}

// Begin marks the start of speaking text
func (s *SpeechState) Begin(text string) {
	s.mu.Lock()
	s.speaking = true
	s.text = text
	s.mu.Unlock()
}

// End clears both fields together
func (s *SpeechState) End() {
	s.mu.Lock()
	s.speaking = false
	s.text = ""
	s.mu.Unlock()
}

// Snapshot returns Speaking and LastSpokenText read under one lock
func (s *SpeechState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Speaking: s.speaking, LastSpokenText: s.text}
}

// Speaking reports whether speech is in progress
func (s *SpeechState) Speaking() bool {
	return s.Snapshot().Speaking
}
