// Package cryptox holds the key derivation and the authenticated encryption
// used by the vault.
//
// Item keys are derived, never stored: HKDF-SHA256 over the owner id, salted
// with the application salt and bound to the item id. Losing the vault
// database therefore does not leak a key file, and rotating the application
// salt makes every existing artifact undecryptable.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length.
const KeySize = 32

const itemKeyInfo = "audiokeeper/item/v1:"

// DeriveItemKey derives the per-owner, per-item encryption key.
func DeriveItemKey(ownerID, itemID string, appSalt []byte) []byte {
	r := hkdf.New(sha256.New, []byte(ownerID), appSalt, []byte(itemKeyInfo+itemID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255*32 bytes of output
		panic(err)
	}
	return key
}

// KeyFingerprint is a one-way identifier of key used to detect derivation
// mismatches (e.g. after a salt rotation) without storing the key.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// OwnerFingerprint binds an owner id to this device: HMAC-SHA256 keyed by the
// device secret, so the value is neither reversible nor portable.
func OwnerFingerprint(deviceSecret []byte, ownerID string) string {
	m := hmac.New(sha256.New, deviceSecret)
	m.Write([]byte(ownerID))
	return hex.EncodeToString(m.Sum(nil))
}

// ContentName returns the artifact file name for a plaintext digest. Keyed so
// names cannot be guessed from known content.
func ContentName(key, plaintextDigest []byte) string {
	m := hmac.New(sha256.New, key)
	m.Write(plaintextDigest)
	return hex.EncodeToString(m.Sum(nil))
}

// EqualFingerprints compares two hex fingerprints in constant time.
func EqualFingerprints(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
