package advisory

import (
	"encoding/json"
	"fmt"
	"os"
)

// database is the on-disk advisory file layout: a flat list, indexed by
// package name at load time.
type database struct {
	Advisories []Advisory `json:"advisories"`
}

// LoadFile reads a JSON advisory database and returns a Source backed by it.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("advisory: read %s: %w", path, err)
	}
	var db database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("advisory: decode %s: %w", path, err)
	}
	for i, a := range db.Advisories {
		if a.ID == "" || a.Package == "" {
			return nil, fmt.Errorf("advisory: %s: entry %d missing id or package", path, i)
		}
		if _, err := ParseSeverity(string(a.Severity)); err != nil {
			return nil, fmt.Errorf("advisory: %s: entry %s: %w", path, a.ID, err)
		}
	}
	return NewStatic(db.Advisories), nil
}
