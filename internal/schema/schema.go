// Package schema loads the static data_id → field metadata mappings.
package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/formsync/internal/model"
)

// ErrUnknownSchema is returned when a named schema is not in the file.
var ErrUnknownSchema = errors.New("unknown schema")

// Named is one entry of a schema file.
type Named struct {
	Name   string              `yaml:"name"`
	Schema model.SchemaMapping `yaml:"schema"`
}

// Parse decodes a list of named schemas. JSON input is accepted as well.
func Parse(data []byte) ([]Named, error) {
	var out []Named
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	return out, nil
}

// Load reads path and returns the schema called name. An empty path
// yields an empty mapping, which makes capture keep every field.
func Load(path, name string) (model.SchemaMapping, error) {
	if path == "" {
		return model.SchemaMapping{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	all, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Select(all, name)
}

// Select picks a schema by name. An empty name picks the first one.
func Select(all []Named, name string) (model.SchemaMapping, error) {
	for _, n := range all {
		if name == "" || n.Name == name {
			if n.Schema == nil {
				return model.SchemaMapping{}, nil
			}
			return n.Schema, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
}
