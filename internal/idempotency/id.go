// Package idempotency derives deterministic canonical identifiers from a
// module's natural-key source id (spec.md §4.7).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MessageID derives the canonical Message.id for a module + source id.
// The mapping is pure: the same (module, sourceID) always yields the same
// id, across processes and restarts, satisfying spec.md §8 property 1.
func MessageID(module, sourceID string) string {
	return canonicalID("msg", module, sourceID)
}

// canonicalID namespaces the hash by kind and module so that ids from
// different kinds/modules never collide even if two modules happen to
// pick the same natural key text.
func canonicalID(kind, module, sourceID string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + module + "\x00" + sourceID))
	return hex.EncodeToString(h[:16]) // 128 bits is collision-resistant enough
}

// SourceID builds the conventional "<module>:<kind>:<...>" natural key
// string used throughout the collector pipeline.
func SourceID(module, kind string, parts ...string) string {
	s := fmt.Sprintf("%s:%s", module, kind)
	for _, p := range parts {
		s += ":" + p
	}
	return s
}
