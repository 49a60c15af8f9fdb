package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/misa/internal/echo"
	"github.com/lexiqai/misa/internal/state"
	"github.com/lexiqai/misa/internal/stt"
	"github.com/lexiqai/misa/internal/turn"
)

// scriptedRecognizer returns its phrases in order, then blocks until ctx ends
type scriptedRecognizer struct {
	mu      sync.Mutex
	phrases []string
	errs    map[int]error
	calls   int
	paused  int
	resumed int
}

func (r *scriptedRecognizer) CaptureCycle(ctx context.Context) (Phrase, error) {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.mu.Unlock()

	if err := r.errs[i]; err != nil {
		return Phrase{}, err
	}
	if i < len(r.phrases) {
		return Phrase{Text: r.phrases[i]}, nil
	}
	<-ctx.Done()
	return Phrase{}, ctx.Err()
}

func (r *scriptedRecognizer) Pause()  { r.mu.Lock(); r.paused++; r.mu.Unlock() }
func (r *scriptedRecognizer) Resume() { r.mu.Lock(); r.resumed++; r.mu.Unlock() }

func runListener(t *testing.T, rec *scriptedRecognizer, speech state.View, want int) *turn.Queue {
	t.Helper()
	q := turn.NewQueue()
	l := New(rec, echo.NewGuard(0.8, nil), speech, q, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		calls := rec.calls
		rec.mu.Unlock()
		if calls > want {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done
	return q
}

func TestListener_QueuesInOrderWhileIdle(t *testing.T) {
	rec := &scriptedRecognizer{phrases: []string{"hello there", "", "what time is it"}}
	q := runListener(t, rec, state.New(), 3)

	if q.Len() != 2 {
		t.Fatalf("Expected 2 queued utterances, got %d", q.Len())
	}
	first, _ := q.TryPop()
	second, _ := q.TryPop()
	if first.Text != "hello there" || second.Text != "what time is it" {
		t.Errorf("Unexpected order: %q, %q", first.Text, second.Text)
	}
	if first.CapturedAt.IsZero() {
		t.Error("Expected capture time to be set")
	}
}

func TestListener_FiltersEchoWhileSpeaking(t *testing.T) {
	speech := state.New()
	speech.Begin("The weather is sunny today.")

	rec := &scriptedRecognizer{phrases: []string{
		"the weather is sunny today", // echo
		"turn it up",                 // noise
		"misa stop",                  // addressed
	}}
	q := runListener(t, rec, speech, 3)

	if q.Len() != 1 {
		t.Fatalf("Expected only the addressed phrase, got %d items", q.Len())
	}
	u, _ := q.TryPop()
	if u.Text != "misa stop" {
		t.Errorf("Expected %q, got %q", "misa stop", u.Text)
	}
}

// The assistant's reply is picked up by the microphone, and playback ends
// before the cycle's silence runs out. The reply must not come back as a
// user turn.
func TestListener_RejectsEchoWhenSpeechEndsMidCycle(t *testing.T) {
	reply := "The weather today is sunny with a light breeze."
	speech := state.New()
	speech.Begin(reply)

	// Loud for about 200ms, the reply's final transcript near the end
	src := &fakeSource{interval: 5 * time.Millisecond, loud: func(i int) bool { return i < 40 }}
	tr := newFakeTranscriber(map[int][]*stt.TranscriptionResult{38: {final(reply)}})
	rec := NewVoiceRecognizer(src, tr, nil, speech, testTiming())

	end := time.AfterFunc(210*time.Millisecond, speech.End)
	defer end.Stop()

	q := turn.NewQueue()
	l := New(rec, echo.NewGuard(0.8, nil), speech, q, 0)
	l.cycle(context.Background())

	if speech.Speaking() {
		t.Fatal("Expected playback to have ended before the cycle did")
	}
	if q.Len() != 0 {
		u, _ := q.TryPop()
		t.Errorf("Expected echo to be discarded, queued %q", u.Text)
	}
}

func TestListener_AcceptsPhraseAfterSpeechEnds(t *testing.T) {
	speech := state.New()
	speech.Begin("The weather today is sunny with a light breeze.")
	speech.End()

	src := &fakeSource{interval: 5 * time.Millisecond, loud: func(i int) bool { return i < 6 }}
	tr := newFakeTranscriber(map[int][]*stt.TranscriptionResult{5: {final("what about tomorrow")}})
	rec := NewVoiceRecognizer(src, tr, nil, speech, testTiming())

	q := turn.NewQueue()
	l := New(rec, echo.NewGuard(0.8, nil), speech, q, 0)
	l.cycle(context.Background())

	u, ok := q.TryPop()
	if !ok || u.Text != "what about tomorrow" {
		t.Errorf("Expected phrase to be queued, got %+v", u)
	}
}

func TestListener_ContinuesAfterCaptureError(t *testing.T) {
	rec := &scriptedRecognizer{
		phrases: []string{"", "are you there"},
		errs:    map[int]error{0: errors.New("device busy")},
	}
	q := runListener(t, rec, state.New(), 2)

	u, ok := q.TryPop()
	if !ok || u.Text != "are you there" {
		t.Errorf("Expected phrase after failed cycle, got %+v", u)
	}
}

func TestListener_PauseResume(t *testing.T) {
	rec := &scriptedRecognizer{}
	l := New(rec, echo.NewGuard(0.8, nil), state.New(), turn.NewQueue(), 0)

	l.Pause()
	l.Pause()
	l.Resume()

	if rec.paused != 2 || rec.resumed != 1 {
		t.Errorf("Expected calls to be delegated, got %d/%d", rec.paused, rec.resumed)
	}
}
