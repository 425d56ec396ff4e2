// Package common defines sentinel errors and small helpers shared by the
// vault, the metadata store and the player. Callers should use errors.Is to
// match these values; most of them reach callers wrapped with context.
package common

import "errors"

var (
	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Download errors. ErrTransientNetwork wraps interrupted transfers; the
	// item is left Failed with its remote URL intact so the UI can retry.
	ErrTransientNetwork  = errors.New("transient network error")
	ErrDownloadCancelled = errors.New("download cancelled")

	// ErrCryptoIntegrity means the artifact could not be authenticated. The
	// artifact and its vault entry are purged and the item reset to None.
	ErrCryptoIntegrity = errors.New("crypto integrity error")

	// ErrAccessDenied is an Access Guard rejection (owner, app version, age).
	ErrAccessDenied = errors.New("access denied")

	// ErrPlaybackTransport is an audio engine failure.
	ErrPlaybackTransport = errors.New("playback transport error")

	// ErrSourceNotReady is returned by the backend while audio is generating.
	ErrSourceNotReady = errors.New("source not ready")

	// Validation errors.
	ErrInvalidArgument = errors.New("invalid argument")
)
