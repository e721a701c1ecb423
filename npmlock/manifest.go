package npmlock

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Manifest is the subset of package.json the loader needs: the project
// identity and its declared direct dependency ranges.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ParseManifest decodes a package.json document.
func ParseManifest(data []byte, file string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, malformed(file, jsonPos(err), fmt.Sprintf("invalid JSON: %v", err), err)
	}
	return &m, nil
}

// Direct returns every declared direct dependency, dev dependencies
// included, name to declared range string.
func (m *Manifest) Direct() map[string]string {
	out := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for name, rng := range m.Dependencies {
		out[name] = rng
	}
	for name, rng := range m.DevDependencies {
		if _, ok := out[name]; !ok {
			out[name] = rng
		}
	}
	return out
}

func jsonPos(err error) string {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return fmt.Sprintf("offset %d", syn.Offset)
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return fmt.Sprintf("offset %d", typ.Offset)
	}
	return ""
}
