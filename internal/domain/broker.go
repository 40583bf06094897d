// Package domain contains core domain types for the MediAI broker assistant.
package domain

import (
	"time"
)

// Broker is an anonymous insurance broker identified by a device cookie.
type Broker struct {
	BrokerID    string    `json:"broker_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdleFor returns how long the broker has been inactive at now.
// Returns 0 if the broker was seen in the future relative to now.
func (b *Broker) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(b.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
