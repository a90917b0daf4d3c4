package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"script-sandbox/pkg/jsonval"
)

// Terminal states of one evaluation. Every invocation traverses
// pending → running → exactly one of these; nothing is retained afterwards.
type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeErrored               // guest code threw or returned a non-serializable value
	outcomeTimedOut              // the deadline won the race
	outcomeFaulted               // fault in the evaluator itself, not in guest code
)

type evalOutcome struct {
	kind  outcomeKind
	value any
	err   error
}

// errDeadline is the interrupt payload the deadline timer injects.
var errDeadline = errors.New("wall-clock deadline exceeded")

// interruptGrace bounds how long the caller waits for an interrupted guest
// to observe the interrupt before its goroutine is abandoned.
const interruptGrace = 500 * time.Millisecond

// compileSource parses guest source without executing anything. Source using
// a top-level return statement is accepted by retrying inside a function
// wrapper, so both completion-value scripts ("1+2") and explicit-return
// scripts work. The raw compile error is reported when neither form parses.
func compileSource(src string) (*goja.Program, error) {
	prog, err := goja.Compile("guest.js", src, false)
	if err == nil {
		return prog, nil
	}

	wrapped := "(function() {\n" + src + "\n})()"
	if prog2, err2 := goja.Compile("guest.js", wrapped, false); err2 == nil {
		return prog2, nil
	}

	return nil, err
}

// runProgram executes a compiled program against caps on a fresh runtime,
// racing completion against the wall-clock deadline. The timer is enforced
// from outside the runtime: the guest cannot observe, extend, or cancel it.
// Whatever the guest produces after the deadline fires is discarded.
//
// goja checks its interrupt flag on loop back-edges, so a non-yielding busy
// loop is preempted in-process. A hostile guest stuck inside a single long
// native intrinsic call could still overrun the grace window; running the
// evaluator in a worker process that can be hard-killed is the documented
// production hardening for that case.
func runProgram(ctx context.Context, prog *goja.Program, caps *CapabilitySet, timeout time.Duration, logger zerolog.Logger) evalOutcome {
	vm := goja.New()
	if err := caps.install(vm); err != nil {
		return evalOutcome{kind: outcomeFaulted, err: fmt.Errorf("%w: %s", ErrInternal, err)}
	}

	type runResult struct {
		value goja.Value
		err   error
	}
	done := make(chan runResult, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- runResult{err: fmt.Errorf("%w: evaluator panic: %v", ErrInternal, rec)}
			}
		}()
		v, err := vm.RunProgram(prog)
		done <- runResult{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return classify(res.value, res.err)

	case <-timer.C:
		vm.Interrupt(errDeadline)
		awaitHalt(done, logger)
		return evalOutcome{kind: outcomeTimedOut}

	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		awaitHalt(done, logger)
		return evalOutcome{kind: outcomeTimedOut}
	}
}

// awaitHalt gives an interrupted guest a bounded window to unwind.
func awaitHalt[T any](done <-chan T, logger zerolog.Logger) {
	select {
	case <-done:
	case <-time.After(interruptGrace):
		logger.Error().Msg("guest did not halt within grace window after interrupt, abandoning goroutine")
	}
}

func classify(value goja.Value, err error) evalOutcome {
	if err == nil {
		exported, nerr := jsonval.Normalize(exportValue(value))
		if nerr != nil {
			return evalOutcome{kind: outcomeErrored, err: fmt.Errorf("return value: %w", nerr)}
		}
		return evalOutcome{kind: outcomeCompleted, value: exported}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return evalOutcome{kind: outcomeTimedOut}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return evalOutcome{kind: outcomeErrored, err: errors.New(guestErrorMessage(exception))}
	}

	if errors.Is(err, ErrInternal) {
		return evalOutcome{kind: outcomeFaulted, err: err}
	}

	// Anything else from the runtime (stack overflow etc.) is a guest error.
	return evalOutcome{kind: outcomeErrored, err: err}
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// guestErrorMessage derives a message from whatever value the guest threw.
func guestErrorMessage(ex *goja.Exception) string {
	if ex == nil {
		return "guest code threw"
	}
	if v := ex.Value(); v != nil {
		return v.String()
	}
	return ex.Error()
}
