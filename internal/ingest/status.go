package ingest

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle of an ingestion job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// CancelledReason is the error recorded when a job is cancelled.
const CancelledReason = "cancelled"

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// transitions is the exhaustive forward edge set. Terminal states have none.
var transitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusProcessing, StatusFailed},
	StatusProcessing:  {StatusCompleted, StatusFailed},
	StatusCompleted:   nil,
	StatusFailed:      nil,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[candidate]; ok {
		return candidate, true
	}
	return "", false
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether a worker is executing the job.
func (s Status) Active() bool {
	return s == StatusDownloading || s == StatusProcessing
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Next returns the success successor of s, or "" for the last and terminal states.
func (s Status) Next() Status {
	switch s {
	case StatusPending:
		return StatusDownloading
	case StatusDownloading:
		return StatusProcessing
	case StatusProcessing:
		return StatusCompleted
	case StatusCompleted, StatusFailed:
		return ""
	default:
		panic(fmt.Sprintf("ingest: unknown status %q", string(s)))
	}
}
