// Package fingerprint computes the content identity of a dependency set.
package fingerprint

import (
	"bytes"
	"encoding/json"

	"github.com/jmgilman/depsync/errors"
	"github.com/opencontainers/go-digest"
)

// manifest is the subset of package.json that determines the installed tree.
type manifest struct {
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Calculate returns the hex SHA-256 fingerprint of the manifest's
// dependencies and devDependencies plus the lockfile, if any. A non-empty
// suffix is appended as "<hash>-<suffix>".
//
// Only dependency fields contribute, so bumping a project's own version or
// scripts does not invalidate the bundle. Keys are serialized in sorted
// order, so formatting changes do not either.
func Calculate(manifestData, lockfile []byte, suffix string) (string, error) {
	var m manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "failed to parse package manifest")
	}

	// encoding/json sorts map keys
	canonical, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to encode dependencies")
	}

	digester := digest.SHA256.Digester()
	h := digester.Hash()
	h.Write(canonical)
	if len(lockfile) > 0 {
		h.Write([]byte{'\n'})
		h.Write(bytes.TrimSpace(lockfile))
	}

	hash := digester.Digest().Encoded()
	if suffix != "" {
		hash += "-" + suffix
	}
	return hash, nil
}

// Validate reports whether s looks like a fingerprint produced by Calculate.
func Validate(s string) error {
	encoded := s
	if len(s) > 64 && s[64] == '-' {
		encoded = s[:64]
	}
	if err := digest.NewDigestFromEncoded(digest.SHA256, encoded).Validate(); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "invalid fingerprint %q", s)
	}
	return nil
}
