package api

import "encoding/json"

// ExecuteRequest is the request envelope consumed by POST /execute. Field
// names are the engine's wire contract: a blank sourceText is a valid
// identity transform of inputValue, timeoutMs is clamped server-side, and
// guestLanguageId may be omitted (it defaults to the only supported guest
// language).
type ExecuteRequest struct {
	SourceText      string         `json:"sourceText"`
	InputValue      any            `json:"inputValue,omitempty"`
	BoundVariables  map[string]any `json:"boundVariables,omitempty"`
	TimeoutMS       int            `json:"timeoutMs,omitempty"`
	GuestLanguageID string         `json:"guestLanguageId,omitempty"`
}

// LogLine is one guest-emitted log entry on the wire.
type LogLine struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ExecuteResponse is the uniform result envelope produced for every
// execution. returnValue is present only for status "success" (kept as raw
// JSON so legitimate false/0/null returns survive marshaling); errorMessage
// only for "error" and "timeout"; logLines is always present.
type ExecuteResponse struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	ReturnValue   json.RawMessage `json:"returnValue,omitempty"`
	LogLines      []LogLine       `json:"logLines"`
	LogsTruncated bool            `json:"logsTruncated,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	ElapsedMS     int64           `json:"elapsedMs"`
}

// ValidateRequest is the request for the validation-only endpoint.
type ValidateRequest struct {
	SourceText string `json:"sourceText"`
}

// Violation names a static-validation rule that matched.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidateResponse is the verdict of the validation-only endpoint.
type ValidateResponse struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
