package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsPersonaFile reports whether path has a YAML extension.
func IsPersonaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile reads a single Persona from a YAML file.
func LoadFromFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured persona dir
	if err != nil {
		return nil, fmt.Errorf("read persona file %s: %w", path, err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate persona file %s: %w", path, err)
	}

	return &p, nil
}

// LoadFromDirectory reads every .yaml/.yml persona in dir.
// A missing directory yields no personas and no error.
func LoadFromDirectory(dir string) ([]Persona, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read persona directory %s: %w", dir, err)
	}

	var personas []Persona
	for _, entry := range entries {
		if entry.IsDir() || !IsPersonaFile(entry.Name()) {
			continue
		}
		p, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		personas = append(personas, *p)
	}
	return personas, nil
}
