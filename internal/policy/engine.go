// Package policy evaluates turn admission rules with OPA.
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"
	"github.com/pkg/errors"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is the document the policy is evaluated against.
type Input struct {
	ContentLength    int  `json:"content_length"`
	MaxContentLength int  `json:"max_content_length"`
	NewConversation  bool `json:"new_conversation"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.verdict"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "prepare rego")
	}
	return &Engine{query: query}, nil
}

// Evaluate returns the decision ("allow" or "deny") and an optional reason.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"content_length":     input.ContentLength,
		"max_content_length": input.MaxContentLength,
		"new_conversation":   input.NewConversation,
	}))
	if err != nil {
		return "", "", errors.Wrap(err, "evaluate policy")
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default verdict; an undefined result means it was replaced.
		return DecisionAllow, "default", nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return v, "", nil
	case map[string]interface{}:
		decision, _ := v["decision"].(string)
		reason, _ := v["reason"].(string)
		if decision == "" {
			decision = DecisionAllow
		}
		return decision, reason, nil
	}
	return DecisionAllow, "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package chat_policy

default verdict = {"decision": "allow", "reason": ""}

# Reject turns whose text exceeds the configured limit.
verdict = {"decision": "deny", "reason": "message is too long"} {
	input.max_content_length > 0
	input.content_length > input.max_content_length
}
`
