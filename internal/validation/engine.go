// Package validation runs business rules over a parsed batch and reports
// structured findings. Rules never fail: a rule that cannot apply to a batch
// simply reports nothing.
package validation

import (
	"github.com/JonMunkholm/fieldpipe/internal/core"
)

// Rule inspects a batch against its table schema and returns its findings.
type Rule func(batch core.Batch, schema core.TableSchema) []core.Finding

// Engine applies an ordered set of rules.
type Engine struct {
	rules []Rule
}

// NewEngine returns an Engine running rules in the given order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Validate runs every rule and returns the findings in rule order.
// The returned slice is owned by the caller.
func (e *Engine) Validate(batch core.Batch, schema core.TableSchema) []core.Finding {
	var findings []core.Finding
	for _, rule := range e.rules {
		findings = append(findings, rule(batch, schema)...)
	}
	return findings
}
