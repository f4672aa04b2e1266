package domain

import "time"

type ExpirationState string

const (
	ExpirationActive     ExpirationState = "active"
	ExpirationPersistent ExpirationState = "persistent" // collection exists without a deadline
	ExpirationAbsent     ExpirationState = "absent"     // collection does not exist
)

// Expiration describes the deadline governing a whole session collection.
type Expiration struct {
	State     ExpirationState
	Remaining time.Duration
}
