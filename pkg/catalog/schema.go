// pkg/catalog/schema.go
package catalog

// Kind is the input type a descriptor renders as.
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindSelect   Kind = "select"
	KindRadio    Kind = "radio"
	KindCheckbox Kind = "checkbox"
)

func (k Kind) Known() bool {
	switch k {
	case KindText, KindTextarea, KindSelect, KindRadio, KindCheckbox:
		return true
	}
	return false
}

// HasOptions reports kinds whose value must be one of the declared options.
func (k Kind) HasOptions() bool {
	return k == KindSelect || k == KindRadio
}

// Catalog is the field-descriptor list shared by the validation gate and the
// rendering layer.
type Catalog struct {
	Version      string       `json:"version" yaml:"version"`
	ConsentField string       `json:"consentField" yaml:"consent_field"`
	Sections     []Section    `json:"sections" yaml:"sections"`
	Descriptors  []Descriptor `json:"descriptors" yaml:"descriptors"`
}

type Section struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

type Descriptor struct {
	Name      string   `json:"name" yaml:"name"`
	Label     string   `json:"label" yaml:"label"`
	Section   string   `json:"section,omitempty" yaml:"section,omitempty"`
	Kind      Kind     `json:"kind" yaml:"kind"`
	Required  bool     `json:"required" yaml:"required"`
	MinLength int      `json:"minLength,omitempty" yaml:"min_length,omitempty"`
	Options   []Option `json:"options,omitempty" yaml:"options,omitempty"`
	// Rule is an optional boolean expression over `value` and `fields`.
	Rule    string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// OptionValues returns the allowed values of a choice descriptor.
func (d Descriptor) OptionValues() []string {
	out := make([]string, 0, len(d.Options))
	for _, o := range d.Options {
		out = append(out, o.Value)
	}
	return out
}
