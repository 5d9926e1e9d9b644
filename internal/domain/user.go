package domain

import "time"

// User is a registered player. Read-only in this subsystem: users are
// referenced by id and looked up by API token for authentication. Token
// issuance happens elsewhere.
type User struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
