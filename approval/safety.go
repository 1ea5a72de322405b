package approval

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/rego"
)

// SafetyClassifier decides whether a chained command is safe to run
// without operator approval. The classification is not derivable from the
// event data itself, so it is an injected, swappable policy rather than a
// rule inside the fold.
type SafetyClassifier interface {
	Safe(ctx context.Context, prefixes []string) bool
}

// RegoClassifier evaluates command safety against a rego policy document.
type RegoClassifier struct {
	query rego.PreparedEvalQuery
}

// NewRegoClassifier prepares the safety query from the given policy
// content.
func NewRegoClassifier(ctx context.Context, policyContent string) (*RegoClassifier, error) {
	r := rego.New(
		rego.Query("data.command_safety.decision"),
		rego.Module("command_safety.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &RegoClassifier{query: query}, nil
}

// Safe evaluates the policy for the full prefix list of one invocation.
// Classification is all-or-nothing: the policy sees every prefix of the
// chained command and must vouch for all of them.
func (c *RegoClassifier) Safe(ctx context.Context, prefixes []string) bool {
	if len(prefixes) == 0 {
		return false
	}

	results, err := c.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"prefixes": prefixes,
	}))
	if err != nil {
		log.Printf("ERROR: safety policy evaluation failed: %v", err)
		return false
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false
	}

	decision, ok := results[0].Expressions[0].Value.(string)
	return ok && decision == "safe"
}

// DefaultSafetyPolicy classifies read-only-style command prefixes as safe.
// Safe prefixes are auto-approved without being persisted in the project's
// approval set.
const DefaultSafetyPolicy = `
package command_safety

import rego.v1

default decision := "unsafe"

safe_prefixes := {
	"ls", "cat", "head", "tail", "wc",
	"pwd", "echo", "which", "env",
	"grep", "rg", "find",
	"git status", "git log", "git diff", "git show", "git branch",
}

decision := "safe" if {
	count(input.prefixes) > 0
	every prefix in input.prefixes {
		prefix in safe_prefixes
	}
}
`
