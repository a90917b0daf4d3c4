package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Verdict is the outcome of static validation. All applicable rules are
// checked and reported together; the validator never short-circuits.
type Verdict struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
}

// Violation names the rule that matched and a human-readable message.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// denyRule is a pre-execution screening pattern. Substring/regex matching
// over raw source can both over-reject (patterns inside string literals or
// comments) and under-reject (obfuscated access paths). It is an advisory
// pre-filter for caller feedback; the capability allow-list enforced by the
// evaluator is the actual isolation boundary.
type denyRule struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
}

const RuleSyntax = "syntax_error"

func defaultDenyRules() []denyRule {
	return []denyRule{
		{
			Name:        "module_load",
			Description: "dynamic module loading is not available to guest code",
			Regex:       regexp.MustCompile(`\brequire\s*\(|\bimport\s*\(|^\s*import\s+`),
		},
		{
			Name:        "dynamic_eval",
			Description: "eval of a string and the Function constructor are disabled",
			Regex:       regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\b|\bFunction\s*\(`),
		},
		{
			Name:        "process_access",
			Description: "host process and global-object identifiers are not exposed",
			Regex:       regexp.MustCompile(`\bprocess\b|\bglobalThis\b|\bglobal\s*\.`),
		},
		{
			Name:        "environment_access",
			Description: "environment variables are not exposed",
			Regex:       regexp.MustCompile(`\bprocess\s*\.\s*env\b|\b__dirname\b|\b__filename\b`),
		},
		{
			Name:        "filesystem_access",
			Description: "filesystem identifiers are not available to guest code",
			Regex:       regexp.MustCompile(`\bfs\s*\.|\breadFile(Sync)?\b|\bwriteFile(Sync)?\b|\bcreate(Read|Write)Stream\b|\bunlink(Sync)?\b`),
		},
		{
			Name:        "network_access",
			Description: "network identifiers are not available to guest code",
			Regex:       regexp.MustCompile(`\bfetch\s*\(|\bXMLHttpRequest\b|\bWebSocket\b|\bhttps?\s*\.\s*(get|request)\b|\bnet\s*\.\s*(connect|createServer)\b|\bdgram\b`),
		},
		{
			Name:        "child_process",
			Description: "spawning processes is not available to guest code",
			Regex:       regexp.MustCompile(`\bchild_process\b|\bexecSync\b|\bspawn(Sync)?\s*\(|\bexecFile\b`),
		},
	}
}

// Validate screens guest source before any execution. Every denylist rule is
// applied, then a syntax-only compile (no top-level side effects run). Empty
// or whitespace-only source is valid: the engine treats it as an identity
// transform of the input value.
func (e *Engine) Validate(source string) Verdict {
	if strings.TrimSpace(source) == "" {
		return Verdict{Allowed: true, Violations: []Violation{}}
	}

	violations := []Violation{}

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		for _, r := range e.rules {
			if r.Regex.MatchString(line) {
				violations = append(violations, Violation{
					Rule:    r.Name,
					Message: r.Description,
					Line:    i + 1,
				})

				log.Warn().
					Str("rule", r.Name).
					Int("line", i+1).
					Msg("denylisted pattern in guest source")
			}
		}
	}

	if _, err := compileSource(source); err != nil {
		violations = append(violations, Violation{
			Rule:    RuleSyntax,
			Message: fmt.Sprintf("source does not parse: %s", firstLine(err.Error())),
		})
	}

	return Verdict{Allowed: len(violations) == 0, Violations: violations}
}

// Summary renders the verdict as a single error message for the result envelope.
func (v Verdict) Summary() string {
	if v.Allowed {
		return ""
	}
	names := make([]string, 0, len(v.Violations))
	seen := make(map[string]struct{}, len(v.Violations))
	for _, viol := range v.Violations {
		if _, ok := seen[viol.Rule]; ok {
			continue
		}
		seen[viol.Rule] = struct{}{}
		names = append(names, viol.Rule)
	}
	return "validation rejected: " + strings.Join(names, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
