package models

import "time"

// ConfigUpdateEvent is published by the destination store after every
// successful mutation so listeners (reloader, dispatcher) observe changes
// without polling.
type ConfigUpdateEvent struct {
	EventType     string                 `json:"event_type"`
	DestinationID int64                  `json:"destination_id,omitempty"`
	Action        string                 `json:"action"` // "create", "update", "delete", "reload"
	Timestamp     time.Time              `json:"timestamp"`
	ChangedBy     string                 `json:"changed_by,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeDestinationUpdated = "destination_config_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionReload = "reload"
)
