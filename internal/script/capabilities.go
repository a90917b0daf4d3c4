package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// CapabilitySet is the complete set of names one invocation may reach beyond
// the ECMAScript intrinsics: the bound data values under fixed names and a
// virtual console wired to the output collector. It is built fresh per
// invocation and never shared between runs.
//
// The allow-list is the real isolation boundary here. A goja runtime carries
// no host bindings at all: no module loader, no filesystem or network
// handles, no process or environment accessor, no timers. The closed set
// below plus the pure intrinsics (Math, JSON, Date, RegExp, collection
// constructors, string/number/boolean coercion) is everything guest code can
// see. Unresolved identifiers fail as ReferenceErrors; nothing falls through
// to a host namespace.
type CapabilitySet struct {
	Input     any
	Variables map[string]any
	logs      *LogBuffer
}

// BuildCapabilities constructs the capability set for one invocation.
// input and vars must already be JSON-normalized.
func BuildCapabilities(input any, vars map[string]any, logs *LogBuffer) *CapabilitySet {
	if vars == nil {
		vars = map[string]any{}
	}
	return &CapabilitySet{
		Input:     input,
		Variables: vars,
		logs:      logs,
	}
}

// install binds the set into a fresh runtime. eval and the Function
// constructor are blanked on top: goja would evaluate them hermetically
// inside the same sandbox, but the engine exposes no dynamic code loading
// at all and the validator already rejects such source.
func (c *CapabilitySet) install(vm *goja.Runtime) error {
	if err := vm.Set("input", c.Input); err != nil {
		return fmt.Errorf("binding input: %w", err)
	}
	if err := vm.Set("variables", c.Variables); err != nil {
		return fmt.Errorf("binding variables: %w", err)
	}

	console := vm.NewObject()
	methods := []struct {
		name  string
		level string
	}{
		{"log", "info"},
		{"info", "info"},
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
	}
	for _, m := range methods {
		if err := console.Set(m.name, c.consoleFunc(m.level)); err != nil {
			return fmt.Errorf("binding console.%s: %w", m.name, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("binding console: %w", err)
	}

	for _, denied := range []string{"eval", "Function"} {
		if err := vm.Set(denied, goja.Undefined()); err != nil {
			return fmt.Errorf("blanking %s: %w", denied, err)
		}
	}

	return nil
}

// consoleFunc appends one formatted, leveled line per call. No host I/O is
// performed; the only effect is an append to the collector.
func (c *CapabilitySet) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, formatConsoleArg(arg))
		}
		c.logs.Append(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func formatConsoleArg(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	if b, err := json.Marshal(exported); err == nil {
		return string(b)
	}
	return v.String()
}
