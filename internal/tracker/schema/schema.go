// Package schema describes how a submission maps onto tracker issue fields
// and renders issue payloads from it. Schemas are declarative: a deployment
// picks a built-in one or loads its own from YAML.
package schema

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Wrap is how a slot value is rendered.
type Wrap string

const (
	WrapSingle Wrap = "single"
	WrapMulti  Wrap = "multi"
	WrapRaw    Wrap = "raw"
)

// Sources a slot can read from.
const (
	SourceFormatType = "formatType"
	SourceMessages   = "messages"
	SourceName       = "name"
	SourceCompany    = "company"
	SourceEmail      = "email"
	SourceNotes      = "notes"
	SourceConnection = "connection"
	SourceContact    = "contact"
	SourceConst      = "const"

	extensionPrefix = "extension:"
)

const (
	DescriptionADF   = "adf"
	DescriptionPlain = "plain"
)

// Slot maps one submission attribute onto one tracker field.
type Slot struct {
	Field    string `yaml:"field"`
	Source   string `yaml:"source"`
	Wrap     Wrap   `yaml:"wrap"`
	Value    string `yaml:"value,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// Schema is a named field mapping plus the lookup fields used by status
// queries.
type Schema struct {
	Name              string   `yaml:"name"`
	SummaryPrefix     string   `yaml:"summaryPrefix"`
	DescriptionFormat string   `yaml:"descriptionFormat"`
	Labels            []string `yaml:"labels"`
	LabelFormatType   bool     `yaml:"labelFormatType"`
	CorrelationField  string   `yaml:"correlationField"`
	FormatField       string   `yaml:"formatField"`
	StatusField       string   `yaml:"statusField"`
	Slots             []Slot   `yaml:"slots"`
}

// ExtensionKey returns the request key of an extension slot.
func (s Slot) ExtensionKey() (string, bool) {
	return strings.CutPrefix(s.Source, extensionPrefix)
}

// ExtensionKeys lists the extension request keys the schema reads.
func (s *Schema) ExtensionKeys() []string {
	var keys []string
	for _, slot := range s.Slots {
		if key, ok := slot.ExtensionKey(); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// CorrelationKey returns the request extension key that feeds the
// correlation field, when one does.
func (s *Schema) CorrelationKey() (string, bool) {
	for _, slot := range s.Slots {
		if slot.Field != s.CorrelationField {
			continue
		}
		if key, ok := slot.ExtensionKey(); ok {
			return key, true
		}
	}
	return "", false
}

// SupportsStatusLookup reports whether the lookup fields are configured.
func (s *Schema) SupportsStatusLookup() bool {
	return s.CorrelationField != "" && s.FormatField != ""
}

var knownSources = []string{
	SourceFormatType, SourceMessages, SourceName, SourceCompany, SourceEmail,
	SourceNotes, SourceConnection, SourceContact, SourceConst,
}

// Validate reports every structural problem in the schema.
func (s *Schema) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("schema name is required"))
	}
	switch s.DescriptionFormat {
	case DescriptionADF, DescriptionPlain:
	default:
		errs = append(errs, fmt.Errorf("schema %s: descriptionFormat %q is not one of adf, plain", s.Name, s.DescriptionFormat))
	}
	seen := make(map[string]bool, len(s.Slots))
	for i, slot := range s.Slots {
		if slot.Field == "" {
			errs = append(errs, fmt.Errorf("schema %s: slot %d has no field", s.Name, i))
		}
		if seen[slot.Field] {
			errs = append(errs, fmt.Errorf("schema %s: field %s mapped twice", s.Name, slot.Field))
		}
		seen[slot.Field] = true
		if key, ok := slot.ExtensionKey(); ok {
			if key == "" {
				errs = append(errs, fmt.Errorf("schema %s: slot %s has an empty extension key", s.Name, slot.Field))
			}
		} else if !slices.Contains(knownSources, slot.Source) {
			errs = append(errs, fmt.Errorf("schema %s: slot %s has unknown source %q", s.Name, slot.Field, slot.Source))
		}
		switch slot.Wrap {
		case WrapSingle, WrapRaw:
		case WrapMulti:
			if slot.Source != SourceMessages {
				errs = append(errs, fmt.Errorf("schema %s: slot %s: multi wrap needs the messages source", s.Name, slot.Field))
			}
		default:
			errs = append(errs, fmt.Errorf("schema %s: slot %s has unknown wrap %q", s.Name, slot.Field, slot.Wrap))
		}
		if slot.Source == SourceMessages && slot.Wrap != WrapMulti {
			errs = append(errs, fmt.Errorf("schema %s: slot %s: messages source needs multi wrap", s.Name, slot.Field))
		}
		if slot.Source == SourceConst && slot.Value == "" {
			errs = append(errs, fmt.Errorf("schema %s: const slot %s has no value", s.Name, slot.Field))
		}
	}
	return errors.Join(errs...)
}

// LOBMap is the default mapping onto the LOB_MAP issue type.
func LOBMap() *Schema {
	return &Schema{
		Name:              "lob-map",
		SummaryPrefix:     "New Integration Request",
		DescriptionFormat: DescriptionADF,
		Labels:            []string{"api-created"},
		LabelFormatType:   true,
		CorrelationField:  "customfield_10244",
		FormatField:       "customfield_10231",
		StatusField:       "customfield_10228",
		Slots: []Slot{
			{Field: "customfield_10220", Source: SourceCompany, Wrap: WrapRaw, Required: true},
			{Field: "customfield_10218", Source: SourceContact, Wrap: WrapRaw, Required: true},
			{Field: "customfield_10228", Source: SourceConst, Wrap: WrapSingle, Value: "Not Started"},
			{Field: "customfield_10231", Source: SourceFormatType, Wrap: WrapSingle, Required: true},
			{Field: "customfield_10298", Source: SourceMessages, Wrap: WrapMulti, Required: true},
			{Field: "customfield_10229", Source: SourceConnection, Wrap: WrapSingle},
			{Field: "customfield_10222", Source: "extension:customfield_10222", Wrap: WrapRaw},
			{Field: "customfield_10299", Source: "extension:customfield_10299", Wrap: WrapRaw},
			{Field: "customfield_10244", Source: "extension:customfield_10244", Wrap: WrapRaw},
		},
	}
}

// Basic maps no custom fields and sends a plain-text description. Status
// lookups are unavailable with it.
func Basic() *Schema {
	return &Schema{
		Name:              "basic",
		SummaryPrefix:     "New Integration Request",
		DescriptionFormat: DescriptionPlain,
		Labels:            []string{"api-created"},
	}
}

// Builtin returns the named built-in schema.
func Builtin(name string) (*Schema, bool) {
	switch name {
	case "lob-map":
		return LOBMap(), true
	case "basic":
		return Basic(), true
	}
	return nil, false
}

type file struct {
	Schemas []*Schema `yaml:"schemas"`
}

// Load reads schemas from a YAML file with a top-level "schemas" list.
func Load(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}
	for _, s := range f.Schemas {
		if s.DescriptionFormat == "" {
			s.DescriptionFormat = DescriptionADF
		}
		for i := range s.Slots {
			if s.Slots[i].Wrap == "" {
				s.Slots[i].Wrap = WrapRaw
			}
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return f.Schemas, nil
}

// Resolve picks the schema named name, looking in file (when set) before
// the built-ins.
func Resolve(name, file string) (*Schema, error) {
	if file != "" {
		schemas, err := Load(file)
		if err != nil {
			return nil, err
		}
		for _, s := range schemas {
			if s.Name == name {
				return s, nil
			}
		}
	}
	if s, ok := Builtin(name); ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown field schema %q", name)
}
