package script

import "testing"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultEngineLimits())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func hasRule(v Verdict, rule string) bool {
	for _, viol := range v.Violations {
		if viol.Rule == rule {
			return true
		}
	}
	return false
}

func TestValidate_DenylistedPatterns(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name   string
		source string
		rule   string
	}{
		{"require call", `const fs = require("fs")`, "module_load"},
		{"dynamic import", `import("os").then(m => m)`, "module_load"},
		{"eval of string", `eval("1+1")`, "dynamic_eval"},
		{"function constructor", `new Function("return 1")()`, "dynamic_eval"},
		{"process identifier", `process.exit(1)`, "process_access"},
		{"global object", `globalThis.secrets`, "process_access"},
		{"environment read", `process.env.HOME`, "environment_access"},
		{"filesystem read", `fs.readFileSync("/etc/passwd")`, "filesystem_access"},
		{"fetch call", `fetch("https://example.com")`, "network_access"},
		{"websocket", `new WebSocket("ws://x")`, "network_access"},
		{"child process", `child_process.spawn("sh")`, "child_process"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := e.Validate(tt.source)
			if v.Allowed {
				t.Fatalf("Validate(%q).Allowed = true, want false", tt.source)
			}
			if !hasRule(v, tt.rule) {
				t.Errorf("violations %v do not name rule %q", v.Violations, tt.rule)
			}
		})
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	e := newTestEngine(t)

	source := "eval(payload)\nprocess.env.TOKEN\nfs.readFileSync(p)"
	v := e.Validate(source)

	if v.Allowed {
		t.Fatal("expected rejection")
	}
	for _, rule := range []string{"dynamic_eval", "process_access", "environment_access", "filesystem_access"} {
		if !hasRule(v, rule) {
			t.Errorf("missing rule %q in %v", rule, v.Violations)
		}
	}
}

func TestValidate_SyntaxViolation(t *testing.T) {
	e := newTestEngine(t)

	v := e.Validate("function ( {")
	if v.Allowed {
		t.Fatal("expected rejection for unparsable source")
	}
	if !hasRule(v, RuleSyntax) {
		t.Errorf("violations %v do not name %q", v.Violations, RuleSyntax)
	}
}

func TestValidate_BenignSourceAllowed(t *testing.T) {
	e := newTestEngine(t)

	for _, source := range []string{
		"1 + 2",
		`JSON.stringify({a: Math.max(1, 2)})`,
		`console.log("hello"); input`,
		`var total = 0; for (var i = 0; i < variables.n; i++) { total += i; } total`,
	} {
		if v := e.Validate(source); !v.Allowed {
			t.Errorf("Validate(%q) rejected: %v", source, v.Violations)
		}
	}
}

func TestValidate_EmptySourceAllowed(t *testing.T) {
	e := newTestEngine(t)

	for _, source := range []string{"", "   ", "\n\t\n"} {
		v := e.Validate(source)
		if !v.Allowed {
			t.Errorf("Validate(%q).Allowed = false, want true", source)
		}
		if v.Violations == nil {
			t.Error("Violations must be non-nil")
		}
	}
}

// Pattern matching over raw source cannot see string-literal boundaries, so
// denylisted text inside a harmless string is rejected too. That is the
// accepted cost of an advisory pre-filter and this test pins it down.
func TestValidate_OverRejectsLiterals(t *testing.T) {
	e := newTestEngine(t)

	v := e.Validate(`"never call eval(x) in production"`)
	if v.Allowed {
		t.Fatal("expected the documented false positive to reject")
	}
	if !hasRule(v, "dynamic_eval") {
		t.Errorf("violations %v do not name dynamic_eval", v.Violations)
	}
}

func TestVerdictSummary_DeduplicatesRules(t *testing.T) {
	v := Verdict{
		Allowed: false,
		Violations: []Violation{
			{Rule: "dynamic_eval", Message: "m", Line: 1},
			{Rule: "dynamic_eval", Message: "m", Line: 3},
			{Rule: "process_access", Message: "m", Line: 2},
		},
	}

	want := "validation rejected: dynamic_eval, process_access"
	if got := v.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
