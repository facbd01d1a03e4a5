// Package notify pushes order state changes to buyers over a live channel.
package notify

import "sync"

// Notifier is a best-effort push channel to a buyer. Send reports whether a
// live connection existed and the write was attempted. There is no retry and
// no queuing for offline buyers.
type Notifier interface {
	Send(buyerID, text string) bool
}

// Recorder is an in-memory Notifier that captures every push, used by tests
// and headless runs.
type Recorder struct {
	mu   sync.Mutex
	msgs map[string][]string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{msgs: make(map[string][]string)}
}

// Send records the message and always reports delivery.
func (r *Recorder) Send(buyerID, text string) bool {
	r.mu.Lock()
	r.msgs[buyerID] = append(r.msgs[buyerID], text)
	r.mu.Unlock()
	return true
}

// Messages returns a copy of everything sent to the buyer.
func (r *Recorder) Messages(buyerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs[buyerID]))
	copy(out, r.msgs[buyerID])
	return out
}
