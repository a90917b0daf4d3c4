package storage

import "time"

// Execution is a stored record of one result envelope. Log lines themselves
// are not persisted, only their count and whether the cap was hit.
type Execution struct {
	ID            string     `json:"id" db:"id"`
	Status        string     `json:"status" db:"status"` // success, error, timeout
	CodeHash      string     `json:"code_hash" db:"code_hash"`
	SourceBytes   int        `json:"source_bytes" db:"source_bytes"`
	ReturnValue   string     `json:"return_value,omitempty" db:"return_value"` // JSON text, truncated for storage
	ErrorMessage  string     `json:"error_message,omitempty" db:"error_message"`
	LogLines      int        `json:"log_lines" db:"log_lines"`
	LogsTruncated bool       `json:"logs_truncated" db:"logs_truncated"`
	ElapsedMS     int64      `json:"elapsed_ms" db:"elapsed_ms"`
	RequestIP     string     `json:"request_ip" db:"request_ip"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ExecutionFilter provides criteria for querying executions.
type ExecutionFilter struct {
	Status string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
