package audio

import "sync"

// sessionGuard enforces the single-active-session invariant shared by
// every backend and centralizes the stop-once idiom the teacher uses in
// Recorder.Stop (internal/audio/loopback.go, internal/audio/mic.go):
// teardown only ever runs once per started session, regardless of how
// many times or from which goroutine Stop is called.
type sessionGuard struct {
	mu     sync.Mutex
	active bool
	onStop sync.Once
}

// begin marks a session active, returning a CaptureError with
// ErrAlreadyRecording if one is already running.
func (g *sessionGuard) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return newCaptureError(ErrAlreadyRecording, "a capture session is already active", nil)
	}
	g.active = true
	g.onStop = sync.Once{}
	return nil
}

// end runs stop exactly once for the current session and clears the
// active flag so a subsequent Start is accepted.
func (g *sessionGuard) end(stop func()) {
	g.onStop.Do(stop)
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()
}

// isActive reports whether a session is currently running.
func (g *sessionGuard) isActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
