package models

// State is what the player is doing.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
	StateError      State = "error"
)

// SourceKind tells whether the player reads a decrypted local file or streams
// from the network.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Session is a read-only snapshot of the live playback session.
type Session struct {
	ID              string
	ItemID          string
	State           State
	PositionSeconds float64
	DurationSeconds float64
	PlaybackRate    float64
	SourceKind      SourceKind
	LastError       string
}
