package domain

import "time"

// PresenceEvent is a provider heartbeat reporting whether it is reachable
// online.
type PresenceEvent struct {
	ProviderID string    `json:"provider_id"`
	Online     bool      `json:"online"`
	At         time.Time `json:"at"`
}
