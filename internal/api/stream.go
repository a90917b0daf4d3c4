package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// SSEWriter serializes Server-Sent Events onto a ResponseWriter. Log events
// are emitted from the evaluator goroutine while the handler blocks on the
// engine, hence the mutex.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter returns nil if the ResponseWriter does not support flushing.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEWriter{w: w, flusher: flusher}
}

// SendEvent writes one event and flushes immediately.
func (s *SSEWriter) SendEvent(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// SSE requires each line of a multi-line payload to have its own "data:"
	// prefix. Without this, a newline in guest output breaks the event
	// boundary and could inject fake SSE events.
	fmt.Fprintf(s.w, "event: %s\n", event)
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
