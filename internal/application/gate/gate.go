// Package gate decides whether a field set may be submitted. The same Gate
// runs in the draft engine before a submit is sent and in the service before
// a submit is written.
package gate

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"applicant-portal/internal/common/validation"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/catalog"
)

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Result struct {
	Valid          bool        `json:"valid"`
	Missing        []string    `json:"missing,omitempty"`
	ConsentMissing bool        `json:"consentMissing,omitempty"`
	Violations     []Violation `json:"violations,omitempty"`
}

// Reason is the user-facing explanation of a failed check.
func (r *Result) Reason() string {
	if r == nil || r.Valid {
		return ""
	}
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(r.Missing, ", "))
	}
	if r.ConsentMissing {
		parts = append(parts, "consent required")
	}
	if len(r.Violations) > 0 {
		seen := map[string]bool{}
		var names []string
		for _, v := range r.Violations {
			if !seen[v.Field] {
				seen[v.Field] = true
				names = append(names, v.Field)
			}
		}
		parts = append(parts, "invalid fields: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

// Details flattens the result for error metadata.
func (r *Result) Details() map[string]interface{} {
	return map[string]interface{}{
		"missing":        r.Missing,
		"consentMissing": r.ConsentMissing,
		"violations":     r.Violations,
	}
}

type Gate struct {
	catalog *catalog.Catalog
	schema  *validation.Compiled
	rules   map[string]*vm.Program
}

func New(c *catalog.Catalog) (*Gate, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	schema, err := validation.Compile(SchemaFor(c))
	if err != nil {
		return nil, err
	}

	rules := make(map[string]*vm.Program)
	for _, d := range c.Descriptors {
		if d.Rule == "" {
			continue
		}
		program, err := catalog.CompileRule(d.Rule)
		if err != nil {
			return nil, fmt.Errorf("descriptor %q: %w", d.Name, err)
		}
		rules[d.Name] = program
	}

	return &Gate{catalog: c, schema: schema, rules: rules}, nil
}

func (g *Gate) Catalog() *catalog.Catalog {
	return g.catalog
}

// Check runs the completeness, consent and constraint checks on fields.
func (g *Gate) Check(fields models.Fields, consentGiven bool) *Result {
	res := &Result{ConsentMissing: !consentGiven}

	for _, d := range g.catalog.Required() {
		if isBlank(fields[d.Name]) {
			res.Missing = append(res.Missing, d.Name)
		}
	}

	doc := make(map[string]interface{}, len(fields))
	for name, v := range fields {
		if isBlank(v) {
			if _, isBool := v.(bool); !isBool {
				continue
			}
		}
		doc[name] = v
	}

	for _, e := range g.schema.Validate(doc).Errors {
		res.Violations = append(res.Violations, Violation{
			Field:   e.Field,
			Message: g.messageFor(e.Field, e.Message),
			Code:    e.Code,
		})
	}

	for _, d := range g.catalog.Descriptors {
		program, ok := g.rules[d.Name]
		if !ok {
			continue
		}
		v, present := fields[d.Name]
		if !present || v == nil {
			continue
		}
		out, err := exprlang.Run(program, map[string]any{
			"value":  v,
			"fields": map[string]any(fields),
		})
		if passed, _ := out.(bool); err != nil || !passed {
			res.Violations = append(res.Violations, Violation{
				Field:   d.Name,
				Message: g.messageFor(d.Name, "rule not satisfied"),
				Code:    "RULE_VIOLATION",
			})
		}
	}

	res.Valid = len(res.Missing) == 0 && !res.ConsentMissing && len(res.Violations) == 0
	return res
}

func (g *Gate) messageFor(field, fallback string) string {
	if d, ok := g.catalog.Lookup(field); ok && d.Message != "" {
		return d.Message
	}
	return fallback
}

// SchemaFor derives the per-field type, length and option constraints.
func SchemaFor(c *catalog.Catalog) validation.JSONSchema {
	props := make(map[string]validation.Property, len(c.Descriptors))
	for _, d := range c.Descriptors {
		p := validation.Property{Description: d.Label}
		switch d.Kind {
		case catalog.KindCheckbox:
			p.Type = []string{"boolean"}
		default:
			p.Type = []string{"string"}
		}
		if d.MinLength > 0 {
			n := d.MinLength
			p.MinLength = &n
		}
		if d.Kind.HasOptions() {
			for _, v := range d.OptionValues() {
				p.Enum = append(p.Enum, v)
			}
		}
		props[d.Name] = p
	}
	return validation.JSONSchema{
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: true,
	}
}

// isBlank treats nil, whitespace-only strings and false as not provided.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	default:
		return false
	}
}
