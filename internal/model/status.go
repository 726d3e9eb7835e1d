package model

import "strconv"

// Backend kinds reported by Status.
const (
	KindLocal  = "local"
	KindSQLite = "sqlite"
	KindRemote = "remote"
)

// Status describes the active backend.
type Status struct {
	Kind string `json:"backend"`
	// Location is the file path for local backends and the namespace for remote.
	Location   string `json:"location"`
	Count      int    `json:"count"`
	CountKnown bool   `json:"count_known"`
}

// CountLabel renders the count, or "unknown".
func (s Status) CountLabel() string {
	if !s.CountKnown {
		return "unknown"
	}
	return strconv.Itoa(s.Count)
}
