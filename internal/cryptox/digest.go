// Package cryptox provides content digest helpers for version snapshots.
//
// A version's content hash is used for integrity verification only, never
// for identity: two versions with equal content still have distinct ids.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentDigest returns the lowercase hex BLAKE2b-256 digest of content.
func ContentDigest(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// VerifyContent reports whether digest matches ContentDigest(content).
// A mismatch indicates storage corruption, not a business error.
func VerifyContent(content string, digest string) bool {
	want := ContentDigest(content)
	return subtle.ConstantTimeCompare([]byte(want), []byte(digest)) == 1
}
