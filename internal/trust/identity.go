package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// FileIdentity canonicalizes a document path so the same file always maps to
// the same trust record regardless of how it was referenced.
func FileIdentity(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("trust: resolve path: %w", err)
	}
	return abs, nil
}

// BufferIdentity derives a stable identity for an unsaved buffer from its
// content hash.
func BufferIdentity(content []byte) string {
	h := sha256.Sum256(content)
	return "buffer:" + hex.EncodeToString(h[:])
}
