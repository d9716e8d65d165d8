// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	RunQueued       EventType = "RUN_QUEUED"
	RunStarted      EventType = "RUN_STARTED"
	PairCompleted   EventType = "PAIR_COMPLETED"
	RunFinished     EventType = "RUN_FINISHED"
	SweepRanked     EventType = "SWEEP_RANKED"
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every known event type, for subscribers that want the
// full stream.
var AllEventTypes = []EventType{
	RunQueued,
	RunStarted,
	PairCompleted,
	RunFinished,
	SweepRanked,
	BackupCompleted,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
