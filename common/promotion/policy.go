package promotion

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// PolicyEvaluator evaluates operator-configured CEL constraints against a
// promotion request. Every rule must evaluate to true for the promotion to
// pass the policy check. Rules are compiled once at construction.
type PolicyEvaluator struct {
	rules []compiledRule
}

type compiledRule struct {
	expr    string
	program cel.Program
}

// NewPolicyEvaluator compiles the rules. Variables available to rules:
// commit (string), branch (string), from_env (string), to_env (string),
// findings (int).
func NewPolicyEvaluator(rules []string) (*PolicyEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("commit", cel.StringType),
		cel.Variable("branch", cel.StringType),
		cel.Variable("from_env", cel.StringType),
		cel.Variable("to_env", cel.StringType),
		cel.Variable("findings", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy env: %w", err)
	}

	e := &PolicyEvaluator{}
	for _, expr := range rules {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile policy rule %q: %w", expr, issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build policy program %q: %w", expr, err)
		}

		e.rules = append(e.rules, compiledRule{expr: expr, program: program})
	}

	return e, nil
}

// Evaluate runs every rule. Returns the first rule that failed (evaluated
// to false), or "" when all pass.
func (e *PolicyEvaluator) Evaluate(input map[string]interface{}) (string, error) {
	for _, rule := range e.rules {
		out, _, err := rule.program.Eval(input)
		if err != nil {
			return "", fmt.Errorf("evaluate policy rule %q: %w", rule.expr, err)
		}

		passed, ok := out.Value().(bool)
		if !ok {
			return "", fmt.Errorf("policy rule %q did not return boolean, got %T", rule.expr, out.Value())
		}
		if !passed {
			return rule.expr, nil
		}
	}
	return "", nil
}

// Len returns the number of compiled rules.
func (e *PolicyEvaluator) Len() int {
	return len(e.rules)
}
