package cards

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"setgen/internal/services"
)

// Source is the post-normalization shape of the spreadsheet export.
type Source struct {
	Sets  []SourceSet  `yaml:"sets" json:"sets"`
	Cards []SourceCard `yaml:"cards" json:"cards"`
}

// SourceSet is one set row as exported.
type SourceSet struct {
	ID      string            `yaml:"id" json:"id" validate:"required"`
	Name    string            `yaml:"name" json:"name" validate:"required"`
	Codes   map[string]string `yaml:"codes,omitempty" json:"codes,omitempty"`
	Scratch bool              `yaml:"scratch,omitempty" json:"scratch,omitempty"`
}

// SourceCard is one card row as exported. Keys other than the named ones are
// collected into Fields.
type SourceCard struct {
	ID           string                    `yaml:"id" json:"id" validate:"required"`
	Set          string                    `yaml:"set" json:"set" validate:"required"`
	Name         string                    `yaml:"name" json:"name" validate:"required"`
	Scratch      bool                      `yaml:"scratch,omitempty" json:"scratch,omitempty"`
	Translations map[string]map[string]any `yaml:"translations,omitempty" json:"translations,omitempty"`
	Fields       map[string]any            `yaml:",inline" json:"-"`
}

// LoadSource reads a YAML or JSON export from path.
func LoadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "source", "read", path, err)
	}
	return ParseSource(data)
}

// ParseSource decodes an export document. JSON is accepted as a YAML subset.
func ParseSource(data []byte) (*Source, error) {
	var src Source
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&src); err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "source", "decode", "", err)
	}
	return &src, nil
}

// Marshal encodes the source back to YAML, used to snapshot the data a project was built from.
func (s *Source) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	return buf.Bytes(), nil
}
