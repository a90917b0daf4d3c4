package script

import "time"

// Status is the terminal state reported in the result envelope.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Result is the uniform envelope returned for every invocation, whichever
// terminal state was reached. Exactly one of ReturnValue / ErrorMessage is
// meaningful per status; LogLines is always present, possibly empty.
type Result struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	ReturnValue   any       `json:"return_value,omitempty"`
	LogLines      []LogLine `json:"log_lines"`
	LogsTruncated bool      `json:"logs_truncated,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ElapsedMS     int64     `json:"elapsed_ms"`
	CodeHash      string    `json:"code_hash"`
}

// normalizeResult assembles the envelope from the evaluator's terminal
// state, the output collector, and the measured elapsed time. Evaluator
// faults surface to the caller as a generic error without implementation
// detail; the engine logs the specifics separately for operators.
func normalizeResult(execID, codeHash string, out evalOutcome, logs *LogBuffer, elapsed time.Duration) *Result {
	r := &Result{
		ID:            execID,
		LogLines:      logs.Lines(),
		LogsTruncated: logs.Truncated(),
		ElapsedMS:     elapsed.Milliseconds(),
		CodeHash:      codeHash,
	}

	switch out.kind {
	case outcomeCompleted:
		r.Status = StatusSuccess
		r.ReturnValue = out.value
	case outcomeErrored:
		r.Status = StatusError
		r.ErrorMessage = out.err.Error()
	case outcomeTimedOut:
		r.Status = StatusTimeout
		r.ErrorMessage = "execution deadline exceeded"
	case outcomeFaulted:
		r.Status = StatusError
		r.ErrorMessage = "internal execution failure"
	}

	return r
}
