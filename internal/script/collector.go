package script

import "sync"

// LogLine is one guest-emitted log entry.
type LogLine struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// LogSink receives log lines as they are appended, for streaming callers.
// Sinks must not block: they are called while the guest program runs.
type LogSink func(line LogLine)

const truncationMarker = "... [log output truncated]"

// LogBuffer is the append-only, ordered, leveled output collector for one
// invocation. Both line count and total character volume are hard-capped;
// once either cap is exceeded a single truncation marker is appended and all
// further output is dropped, so a tight-loop logger cannot exhaust memory.
//
// Appends happen on the evaluator goroutine while reads may happen on the
// caller's goroutine after a deadline expiry, hence the mutex.
type LogBuffer struct {
	mu        sync.Mutex
	lines     []LogLine
	chars     int
	maxLines  int
	maxChars  int
	truncated bool
	sink      LogSink
}

// NewLogBuffer creates a collector with the given caps. sink may be nil.
func NewLogBuffer(maxLines, maxChars int, sink LogSink) *LogBuffer {
	if maxLines < 1 {
		maxLines = 1
	}
	if maxChars < 1 {
		maxChars = 1
	}
	return &LogBuffer{
		maxLines: maxLines,
		maxChars: maxChars,
		sink:     sink,
	}
}

// Append records one leveled line, or the truncation marker if a cap is hit.
func (b *LogBuffer) Append(level, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return
	}

	if len(b.lines) >= b.maxLines || b.chars+len(text) > b.maxChars {
		b.truncated = true
		marker := LogLine{Level: "warn", Text: truncationMarker}
		b.lines = append(b.lines, marker)
		if b.sink != nil {
			b.sink(marker)
		}
		return
	}

	line := LogLine{Level: level, Text: text}
	b.lines = append(b.lines, line)
	b.chars += len(text)
	if b.sink != nil {
		b.sink(line)
	}
}

// Lines returns a copy of the collected lines, never nil.
func (b *LogBuffer) Lines() []LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]LogLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// Truncated reports whether the cap was hit.
func (b *LogBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Len returns the number of collected lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
