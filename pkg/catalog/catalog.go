// pkg/catalog/catalog.go
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// DefaultConsentField is used when a catalog does not name one.
const DefaultConsentField = "agree_to_terms"

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Load reads a catalog from a YAML or JSON file, chosen by extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(data, "json")
	default:
		return Parse(data, "yaml")
	}
}

// Parse decodes raw catalog bytes and validates the result.
func Parse(data []byte, format string) (*Catalog, error) {
	var c Catalog
	var err error
	if format == "json" {
		err = json.Unmarshal(data, &c)
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if c.ConsentField == "" {
		c.ConsentField = DefaultConsentField
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the embedded catalog for the hackathon application form.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, "yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Validate checks descriptor consistency.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Descriptors))
	sections := make(map[string]bool, len(c.Sections))
	for _, s := range c.Sections {
		sections[s.ID] = true
	}

	for i, d := range c.Descriptors {
		if d.Name == "" {
			return fmt.Errorf("descriptor %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("descriptor %q: duplicate name", d.Name)
		}
		seen[d.Name] = true

		if !d.Kind.Known() {
			return fmt.Errorf("descriptor %q: unknown kind %q", d.Name, d.Kind)
		}
		if d.Kind.HasOptions() && len(d.Options) == 0 {
			return fmt.Errorf("descriptor %q: %s requires options", d.Name, d.Kind)
		}
		if d.MinLength < 0 {
			return fmt.Errorf("descriptor %q: min_length must not be negative", d.Name)
		}
		if d.Section != "" && len(sections) > 0 && !sections[d.Section] {
			return fmt.Errorf("descriptor %q: unknown section %q", d.Name, d.Section)
		}
		if d.Rule != "" {
			if _, err := CompileRule(d.Rule); err != nil {
				return fmt.Errorf("descriptor %q: rule: %w", d.Name, err)
			}
		}
	}

	if d, ok := c.Lookup(c.ConsentField); ok && d.Kind != KindCheckbox {
		return fmt.Errorf("consent field %q must be a checkbox", c.ConsentField)
	}
	return nil
}

// Lookup finds a descriptor by name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	for _, d := range c.Descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Required lists the required descriptors other than the consent field,
// which is checked separately.
func (c *Catalog) Required() []Descriptor {
	var out []Descriptor
	for _, d := range c.Descriptors {
		if d.Required && d.Name != c.ConsentField {
			out = append(out, d)
		}
	}
	return out
}

// Names returns all descriptor names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Descriptors))
	for _, d := range c.Descriptors {
		out = append(out, d.Name)
	}
	return out
}

// CompileRule compiles a descriptor rule. Rules see `value` and `fields` and
// must yield a bool.
func CompileRule(rule string) (*vm.Program, error) {
	return exprlang.Compile(rule, exprlang.AllowUndefinedVariables(), exprlang.AsBool())
}
