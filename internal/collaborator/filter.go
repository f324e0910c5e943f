package collaborator

import (
	"fmt"
	"regexp"
	"strings"
)

// BoolFilterEvaluator implements FilterEvaluator over the minimal
// boolean-expression language post-install message filters need:
// conjunctions and disjunctions of bare success/failure variable
// references (and their negation), nothing richer.
type BoolFilterEvaluator struct{}

// NewBoolFilterEvaluator creates a BoolFilterEvaluator.
func NewBoolFilterEvaluator() *BoolFilterEvaluator {
	return &BoolFilterEvaluator{}
}

// Eval evaluates expr, a "&&"/"||"-joined (optionally "!"-negated) list of
// variable names, against vars. An empty expr evaluates to true: a
// message with no filter is unconditional.
func (BoolFilterEvaluator) Eval(expr string, vars map[string]bool) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	for _, disjunct := range strings.Split(expr, "||") {
		ok := true
		for _, term := range strings.Split(disjunct, "&&") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			negate := strings.HasPrefix(term, "!")
			name := strings.TrimSpace(strings.TrimPrefix(term, "!"))
			val, known := vars[name]
			if !known {
				return false, fmt.Errorf("unknown filter variable %q", name)
			}
			if negate {
				val = !val
			}
			if !val {
				ok = false
				break
			}
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

var substitutionPattern = regexp.MustCompile(`%\{([a-zA-Z_][a-zA-Z0-9_]*)\}%`)

// Substitute expands %{name}% references in message using vars, rendering
// each as "true"/"false".
func (BoolFilterEvaluator) Substitute(message string, vars map[string]bool) (string, error) {
	var firstErr error
	out := substitutionPattern.ReplaceAllStringFunc(message, func(match string) string {
		name := substitutionPattern.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("unknown substitution variable %q", name)
			}
			return match
		}
		if val {
			return "true"
		}
		return "false"
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
