package extension

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Unit binds an extension name to a factory.
type Unit struct {
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"`
	Factory string            `yaml:"factory"`
	Args    map[string]string `yaml:"args,omitempty"`
}

// Manifest is the content of a deployable artifact.
type Manifest struct {
	Units []Unit `yaml:"units"`
}

// ParseManifest decodes and checks artifact content. Unknown fields are rejected.
func ParseManifest(content []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if len(m.Units) == 0 {
		return nil, errors.New("manifest: no units")
	}
	seen := make(map[string]struct{}, len(m.Units))
	for i, u := range m.Units {
		if u.Name == "" {
			return nil, fmt.Errorf("manifest: unit %d has no name", i)
		}
		if _, dup := seen[u.Name]; dup {
			return nil, fmt.Errorf("manifest: unit %q defined twice", u.Name)
		}
		seen[u.Name] = struct{}{}
		if _, err := ParseKind(u.Kind); err != nil {
			return nil, fmt.Errorf("manifest: unit %q: %w", u.Name, err)
		}
		if u.Factory == "" {
			return nil, fmt.Errorf("manifest: unit %q has no factory", u.Name)
		}
	}
	return &m, nil
}

func (m *Manifest) Unit(name string) (Unit, bool) {
	for _, u := range m.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Marshal renders the manifest as artifact content.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
