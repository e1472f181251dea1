package store

import (
	"time"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

// User is a web UI account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Instance is a stored qBittorrent instance record. QbtPasswordEncrypted
// always holds vault ciphertext, never a plaintext password.
type Instance struct {
	ID                   int64
	UserID               int64
	Label                string
	URL                  string
	QbtUsername          string
	QbtPasswordEncrypted string
	SkipAuth             bool
	CreatedAt            time.Time
}

// Qbt converts the record into the read-only view the qBittorrent core
// consumes.
func (i Instance) Qbt() qbittorrent.Instance {
	return qbittorrent.Instance{
		ID:                i.ID,
		Label:             i.Label,
		URL:               i.URL,
		Username:          i.QbtUsername,
		PasswordEncrypted: i.QbtPasswordEncrypted,
		SkipAuth:          i.SkipAuth,
	}
}

// Integration is stored metadata for an external service (e.g. a search
// indexer). This server stores the record; it never calls the service.
type Integration struct {
	ID              int64
	UserID          int64
	Type            string
	Label           string
	URL             string
	APIKeyEncrypted string
	CreatedAt       time.Time
}

// WebSession is a browser login session, distinct from the ephemeral
// qBittorrent sessions the proxy caches in memory.
type WebSession struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}
