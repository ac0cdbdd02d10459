// Package triage decides whether an incoming customer message makes its
// ticket urgent.
package triage

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"chatdesk/internal/domain"
)

// Rego evaluates a policy whose data.triage.priority rule yields one of
// "low", "normal" or "high".
type Rego struct {
	query rego.PreparedEvalQuery
}

// NewRego prepares policy for evaluation. An empty policy uses DefaultPolicy.
func NewRego(ctx context.Context, policy string) (*Rego, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	r := rego.New(
		rego.Query("data.triage.priority"),
		rego.Module("triage.rego", policy),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("triage: prepare rego: %w", err)
	}
	return &Rego{query: query}, nil
}

// LoadRego reads a policy file; an empty path falls back to DefaultPolicy.
func LoadRego(ctx context.Context, path string) (*Rego, error) {
	if path == "" {
		return NewRego(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("triage: read policy %s: %w", path, err)
	}
	return NewRego(ctx, string(b))
}

// Classify returns the priority the policy assigns to message. No result
// means normal.
func (e *Rego) Classify(ctx context.Context, tenantID, message string) (domain.Priority, error) {
	input := map[string]interface{}{
		"tenant_id": tenantID,
		"message":   message,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("triage: evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PriorityNormal, nil
	}
	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("triage: policy returned %T, want string", results[0].Expressions[0].Value)
	}
	p := domain.Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("triage: policy returned unknown priority %q", s)
	}
	return p, nil
}

// DefaultPolicy marks messages with urgency wording as high priority.
const DefaultPolicy = `
package triage

default priority = "normal"

priority = "high" {
	term := urgent_terms[_]
	contains(lower(input.message), term)
}

urgent_terms = [
	"akut",
	"brådskande",
	"omedelbart",
	"snarast",
	"nödläge",
	"häktad",
	"delgiven stämning",
	"urgent",
	"asap",
	"emergency",
]
`
