package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one membership change.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Store     string    `json:"store"`
	TargetID  int64     `json:"target_id"`
	ActorID   int64     `json:"actor_id"`
	Added     bool      `json:"added"`
	Persisted bool      `json:"persisted"`
}

// Query filters Recent. Zero values match everything.
type Query struct {
	Store    string
	TargetID int64
	Limit    int // <= 0 means 100
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

func (q Query) match(e AuditEntry) bool {
	if q.Store != "" && e.Store != q.Store {
		return false
	}
	if q.TargetID != 0 && e.TargetID != q.TargetID {
		return false
	}
	return true
}
