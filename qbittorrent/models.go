package qbittorrent

// Instance describes one remote qBittorrent endpoint. It is a read-only view
// of the stored record; this package never writes instance records back.
type Instance struct {
	ID                int64
	Label             string
	URL               string
	Username          string
	PasswordEncrypted string
	SkipAuth          bool
}

// LoginResult is the outcome of a login or connection-test attempt.
// Success with an empty Cookie is only valid for skip-auth instances;
// a credentialed login that yields no cookie is reported as a failure.
type LoginResult struct {
	Success bool
	Cookie  string
	Version string

	// Set on failure only.
	Reason string
	Status int
}

// Torrent is the subset of the torrents/info payload this server inspects.
type Torrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

// Tracker is one entry from the torrents/trackers payload. Msg carries the
// tracker's status message, which private trackers use to announce that a
// torrent was deleted on their side.
type Tracker struct {
	URL string `json:"url"`
	Msg string `json:"msg"`
}

// activeStates are the torrent states that consume network bandwidth.
var activeStates = map[string]bool{
	"downloading": true,
	"uploading":   true,
	"stalledDL":   true,
	"stalledUP":   true,
	"forcedDL":    true,
	"forcedUP":    true,
	"queuedDL":    true,
	"queuedUP":    true,
	"checkingDL":  true,
	"checkingUP":  true,
	"moving":      true,
}

// pausedStates cover both pre-5.0 "paused" and 5.x "stopped" naming.
var pausedStates = map[string]bool{
	"pausedDL":  true,
	"pausedUP":  true,
	"stoppedDL": true,
	"stoppedUP": true,
}

// IsActive reports whether the torrent is in a bandwidth-consuming state.
func (t Torrent) IsActive() bool {
	return activeStates[t.State]
}

// IsPaused reports whether the torrent is in a paused or stopped state.
func (t Torrent) IsPaused() bool {
	return pausedStates[t.State]
}
