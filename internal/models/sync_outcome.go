package models

// SyncOutcome describes one calendar sync attempt. It is never persisted.
type SyncOutcome struct {
	Attempted       bool   `json:"attempted"`
	Succeeded       bool   `json:"succeeded"`
	Message         string `json:"message"`
	ExternalEventID string `json:"externalEventId,omitempty"`
}

// Skipped builds an outcome for a sync that never reached the provider.
func Skipped(reason string) SyncOutcome {
	return SyncOutcome{Message: reason}
}

// Failed builds an outcome for a provider call that did not succeed.
func Failed(reason string) SyncOutcome {
	return SyncOutcome{Attempted: true, Message: reason}
}

// Synced builds a successful outcome.
func Synced(message, eventID string) SyncOutcome {
	return SyncOutcome{Attempted: true, Succeeded: true, Message: message, ExternalEventID: eventID}
}
