package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a random nanoid with the given prefix ("node_...").
func NewID(prefix string) string {
	id := gonanoid.Must()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// StableID derives an id from parts. The same parts always give the same id,
// which makes staging writes idempotent across pipeline re-runs.
func StableID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	id := hex.EncodeToString(sum[:])[:24]
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
