package npmlock

import (
	"encoding/json"
	"fmt"
)

// Lockfile is the subset of a v2/v3 package-lock.json the loader needs: the
// flat "packages" map keyed by install path.
type Lockfile struct {
	Name            string               `json:"name"`
	LockfileVersion int                  `json:"lockfileVersion"`
	Packages        map[string]LockEntry `json:"packages"`
}

// LockEntry is one resolved position in the install tree. The empty key ""
// is the project root and mirrors the manifest.
type LockEntry struct {
	Name                 string            `json:"name,omitempty"`
	Version              string            `json:"version"`
	Link                 bool              `json:"link,omitempty"`
	Dev                  bool              `json:"dev,omitempty"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

// ParseLockfile decodes a package-lock.json document. Only lockfile
// versions 2 and 3 carry the flat packages map this loader reads.
func ParseLockfile(data []byte, file string) (*Lockfile, error) {
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, malformed(file, jsonPos(err), fmt.Sprintf("invalid JSON: %v", err), err)
	}
	if lf.LockfileVersion < 2 {
		return nil, malformed(file, "", fmt.Sprintf("unsupported lockfileVersion %d (need 2 or 3)", lf.LockfileVersion), nil)
	}
	if len(lf.Packages) == 0 {
		return nil, malformed(file, "", "lockfile has no packages map", nil)
	}
	return &lf, nil
}
