package playback

import (
	"context"
	"sync"
)

// Handle tracks one in-flight playback
type Handle struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
	finishOnce sync.Once

	mu        sync.Mutex
	err       error
	cancelled bool
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// doneHandle returns a handle that has already finished
func doneHandle() *Handle {
	h := newHandle(context.Background())
	h.finish(nil)
	return h
}

// Cancel stops output as soon as possible. It never fails and may be
// called any number of times, before or after the playback finishes.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.mu.Lock()
		select {
		case <-h.done:
		default:
			h.cancelled = true
		}
		h.mu.Unlock()
		h.cancel()
	})
}

// IsDone reports whether playback has finished or been cancelled
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed when playback ends
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until playback ends or ctx is done and returns Err
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the playback failure, if any. A cancelled playback has no error.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancelled reports whether Cancel took effect before playback finished
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *Handle) finish(err error) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		if !h.cancelled {
			h.err = err
		}
		h.mu.Unlock()
		close(h.done)
		h.cancel()
	})
}
