// Package domain defines the core entities of the prediction game backend and
// the store interfaces that persistence implementations must satisfy.
package domain

import "time"

// RoundStatus is the lifecycle state of a prediction round.
type RoundStatus string

const (
	RoundStatusActive   RoundStatus = "ACTIVE"
	RoundStatusResolved RoundStatus = "RESOLVED"
)

// Round modes. UpDown rounds settle on price direction only; Precision rounds
// settle on exact price predictions.
const (
	RoundModeUpDown    = 0
	RoundModePrecision = 1
)

// ValidRoundMode reports whether mode is one of the known round modes.
func ValidRoundMode(mode int) bool {
	return mode == RoundModeUpDown || mode == RoundModePrecision
}

// Round is a single instance of the price-prediction game, from open to
// resolution. A round is created ACTIVE with the oracle price at open and
// transitions to RESOLVED exactly once, at which point FinalPrice is set.
type Round struct {
	ID         string      `json:"id"`
	StartPrice float64     `json:"start_price"`
	Mode       int         `json:"mode"`
	FinalPrice *float64    `json:"final_price,omitempty"`
	Status     RoundStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// IsActive reports whether the round is still open for resolution.
func (r Round) IsActive() bool {
	return r.Status == RoundStatusActive
}
