package domain

import (
	"encoding/json"
	"time"
)

type Location struct {
	ID       int64
	Name     string
	IsActive bool
}

// Integration is the per-location link to the external booking API.
type Integration struct {
	LocationID  int64
	IsActive    bool
	Credentials Credentials
}

type Credentials struct {
	Region   string `json:"region"`
	Username string `json:"username"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

// Booking is one raw reservation as returned by the external source.
type Booking map[string]any

func (b Booking) JSON() (json.RawMessage, error) { return json.Marshal(b) }

// LocationStatus is the operator view of a location's polling state.
type LocationStatus struct {
	LocationID          int64      `json:"location_id"`
	Name                string     `json:"name"`
	IsActive            bool       `json:"is_active"`
	IntegrationActive   bool       `json:"integration_connected"`
	LastSuccessfulCheck *time.Time `json:"last_check,omitempty"`
}
