// Package models defines the data shared by the metadata store, the vault and
// the player.
package models

import "time"

// Status is the local availability of an audio item.
type Status string

const (
	StatusNone        Status = "none"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusFailed      Status = "failed"
)

// Terminal reports whether a download operation has finished with s.
func (s Status) Terminal() bool {
	return s == StatusDownloaded || s == StatusFailed
}

// AudioRecord tracks one audio item ever referenced locally.
// LocalHandle is non-empty exactly when Status is StatusDownloaded.
type AudioRecord struct {
	ID          string
	RemoteURL   string
	LocalHandle string
	Status      Status

	// Progress is in [0,1] and meaningful only while downloading.
	Progress float64

	// FileSizeBytes is 0 when unknown.
	FileSizeBytes int64
	DownloadedAt  *time.Time
	Title         string

	// Seq is the sequence number of the last accepted operation; updates
	// carrying an older number are stale.
	Seq       uint64
	UpdatedAt time.Time
}
