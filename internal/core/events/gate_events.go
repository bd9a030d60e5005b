package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntryCreatedEvent    = "gatelog.entry.created"
	EntryExitedEvent     = "gatelog.entry.exited"
	RequestResolvedEvent = "identity.request.resolved"
	AccessLockedEvent    = "identity.access.locked"
)

func NewEntryCreatedEvent(entryID, subType, name, createdBy string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EntryCreatedEvent,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"entry_id":   entryID,
			"sub_type":   subType,
			"name":       name,
			"created_by": createdBy,
		},
	}
}

func NewEntryExitedEvent(entryID string, outTime time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EntryExitedEvent,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"entry_id": entryID,
			"out_time": outTime,
		},
	}
}

func NewRequestResolvedEvent(requestID, requestType, status string, autoResolved bool) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      RequestResolvedEvent,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"request_id":    requestID,
			"request_type":  requestType,
			"status":        status,
			"auto_resolved": autoResolved,
		},
	}
}

func NewAccessLockedEvent(userID, reason string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      AccessLockedEvent,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"user_id": userID,
			"reason":  reason,
		},
	}
}
