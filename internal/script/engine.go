package script

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"script-sandbox/pkg/jsonval"
)

// LanguageJavaScript is the only supported guest language identifier.
const LanguageJavaScript = "javascript"

// Request is the envelope consumed by the engine. Input and Variables must
// be JSON-serializable; the engine normalizes them at the boundary. A blank
// Source is valid and acts as an identity transform of Input. TimeoutMS is
// clamped to [1, MaxTimeout]; zero selects the default.
type Request struct {
	Source    string         `json:"source_text"`
	Input     any            `json:"input_value"`
	Variables map[string]any `json:"bound_variables"`
	TimeoutMS int            `json:"timeout_ms"`
	Language  string         `json:"guest_language_id"`
}

// Executor is the engine surface the HTTP layer and tests program against.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	ExecuteStreaming(ctx context.Context, req Request, sink LogSink) (*Result, error)
	Validate(source string) Verdict
}

// Engine runs untrusted guest scripts to completion or forced termination.
// It holds only immutable configuration and a concurrency semaphore; no
// state is carried across invocations. Safe for concurrent use.
type Engine struct {
	limits Limits
	rules  []denyRule
	sem    chan struct{}
	active atomic.Int64
}

// New builds an engine from immutable limits. The denylist rule table is
// built once here and never mutated.
func New(limits Limits) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		limits: limits,
		rules:  defaultDenyRules(),
		sem:    make(chan struct{}, limits.MaxConcurrent),
	}, nil
}

// Execute runs one guest script under the engine's isolation and deadline
// contract. The contract is total for guest-caused outcomes: validation
// rejections, syntax errors, runtime errors, and timeouts all come back as
// a Result envelope (with a matching sentinel error for callers that branch
// on it). A nil Result is only ever returned for malformed requests or
// engine-side faults.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	return e.execute(ctx, req, nil)
}

// ExecuteStreaming is Execute with log lines additionally delivered to sink
// as the guest emits them.
func (e *Engine) ExecuteStreaming(ctx context.Context, req Request, sink LogSink) (*Result, error) {
	return e.execute(ctx, req, sink)
}

// ActiveCount returns the number of evaluations currently running.
func (e *Engine) ActiveCount() int64 {
	return e.active.Load()
}

func (e *Engine) execute(ctx context.Context, req Request, sink LogSink) (*Result, error) {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Source)))

	logger := log.With().
		Str("exec_id", execID).
		Str("code_hash", codeHash[:16]).
		Logger()

	logger.Info().Msg("execution requested")

	if err := e.validateRequest(req); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "validate_request", Err: err}
	}

	timeout := e.clampTimeout(req.TimeoutMS)
	start := time.Now()

	input, err := jsonval.Normalize(req.Input)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "normalize_input", Err: fmt.Errorf("%w: input: %s", ErrInvalidRequest, err)}
	}
	vars, err := jsonval.NormalizeMap(req.Variables)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "normalize_variables", Err: fmt.Errorf("%w: variables: %s", ErrInvalidRequest, err)}
	}

	// Blank source is an identity pass-through of the input value.
	if strings.TrimSpace(req.Source) == "" {
		return &Result{
			ID:          execID,
			Status:      StatusSuccess,
			ReturnValue: input,
			LogLines:    []LogLine{},
			ElapsedMS:   time.Since(start).Milliseconds(),
			CodeHash:    codeHash,
		}, nil
	}

	verdict := e.Validate(req.Source)
	if !verdict.Allowed {
		logger.Info().Int("violations", len(verdict.Violations)).Msg("source rejected before execution")
		return &Result{
			ID:           execID,
			Status:       StatusError,
			LogLines:     []LogLine{},
			ErrorMessage: verdict.Summary(),
			ElapsedMS:    time.Since(start).Milliseconds(),
			CodeHash:     codeHash,
		}, ErrValidationRejected
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	e.active.Add(1)
	defer e.active.Add(-1)

	prog, err := compileSource(req.Source)
	if err != nil {
		return &Result{
			ID:           execID,
			Status:       StatusError,
			LogLines:     []LogLine{},
			ErrorMessage: "syntax error: " + firstLine(err.Error()),
			ElapsedMS:    time.Since(start).Milliseconds(),
			CodeHash:     codeHash,
		}, ErrSyntax
	}

	logs := NewLogBuffer(e.limits.MaxLogLines, e.limits.MaxLogChars, sink)
	caps := BuildCapabilities(input, vars, logs)

	outcome := runProgram(ctx, prog, caps, timeout, logger)
	elapsed := time.Since(start)
	result := normalizeResult(execID, codeHash, outcome, logs, elapsed)

	switch outcome.kind {
	case outcomeTimedOut:
		logger.Warn().Dur("timeout", timeout).Msg("execution timed out")
		return result, ErrTimeout
	case outcomeFaulted:
		// Operator-facing detail stays in the log; the caller sees a
		// generic error message in the envelope.
		logger.Error().Err(outcome.err).Msg("evaluator fault")
		return result, ErrInternal
	}

	logger.Info().
		Str("status", string(result.Status)).
		Dur("elapsed", elapsed).
		Int("log_lines", len(result.LogLines)).
		Msg("execution completed")

	return result, nil
}

func (e *Engine) validateRequest(req Request) error {
	if req.Language != "" && req.Language != LanguageJavaScript {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}
	if len(req.Source) > e.limits.MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds %d byte limit", ErrInvalidRequest, e.limits.MaxSourceBytes)
	}
	if req.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout_ms must be >= 0, got %d", ErrInvalidRequest, req.TimeoutMS)
	}
	return nil
}

// clampTimeout maps the caller's milliseconds to [1ms, MaxTimeout], with
// zero selecting the configured default.
func (e *Engine) clampTimeout(timeoutMS int) time.Duration {
	if timeoutMS == 0 {
		return e.limits.DefaultTimeout
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout > e.limits.MaxTimeout {
		return e.limits.MaxTimeout
	}
	if timeout < time.Millisecond {
		return time.Millisecond
	}
	return timeout
}
