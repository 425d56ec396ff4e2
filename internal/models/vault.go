package models

import "time"

// VaultEntry binds one encrypted artifact to an owner, an app build and a
// creation time. EncryptedPath never leaves the vault package.
type VaultEntry struct {
	ItemID           string
	EncryptedPath    string
	KeyFingerprint   string
	OwnerFingerprint string
	FileSizeBytes    int64
	CreatedAt        time.Time
	AppVersion       string
}
