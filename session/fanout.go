package session

import (
	"sync"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/status"
	"github.com/sirupsen/logrus"
)

// FrameWriter is the frame-plane entry point of a sender session's
// pipeline: the top of the chain spec_session_sender.cpp calls the
// "feedback monitor" stage, here just SenderSession.WriteFrame.
type FrameWriter interface {
	WriteFrame(frame *format.Frame) status.Code
}

// Fanout replicates one captured frame to every participating sender
// session (spec.md §4.15 "frame fanout"): a conference-style source
// writes once per capture period and every session gets its own copy.
// A session whose write returns a terminal status is unlinked
// immediately so it never receives another frame, and its failing
// status is remembered and reported by LastError.
type Fanout struct {
	mu       sync.Mutex
	sessions map[string]FrameWriter
	failed   map[string]status.Code
}

// NewFanout returns an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{
		sessions: make(map[string]FrameWriter),
		failed:   make(map[string]status.Code),
	}
}

// AddSession registers w under id, replacing any existing session under
// the same id and clearing its prior failure record.
func (f *Fanout) AddSession(id string, w FrameWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = w
	delete(f.failed, id)
}

// RemoveSession unlinks the session under id, if any.
func (f *Fanout) RemoveSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

// Write replicates frame to every registered session. Sessions whose
// write fails terminally are unlinked before Write returns; their status
// is retrievable via LastError until the next AddSession call under the
// same id clears it.
func (f *Fanout) Write(frame *format.Frame) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.sessions))
	for id := range f.sessions {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	for _, id := range ids {
		f.mu.Lock()
		w, ok := f.sessions[id]
		f.mu.Unlock()
		if !ok {
			continue
		}

		code := w.WriteFrame(frame)
		if !code.Terminal() {
			continue
		}

		f.mu.Lock()
		delete(f.sessions, id)
		f.failed[id] = code
		f.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Fanout.Write",
			"session":  id,
			"status":   code.String(),
		}).Warn("session: fanout: session write failed terminally, unlinked")
	}
}

// LastError returns the terminal status a session failed with, if its
// write has failed since it was last added.
func (f *Fanout) LastError(id string) (status.Code, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.failed[id]
	return code, ok
}

// Len reports the number of sessions currently participating.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}
