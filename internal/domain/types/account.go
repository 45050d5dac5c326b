package types

import "time"

// AccountProfile records which account this device was initialised for and
// where its keys were published.
type AccountProfile struct {
	UserID         UserID         `json:"user_id"`
	RegistrationID RegistrationID `json:"registration_id"`
	Directory      string         `json:"directory"`
	Fingerprint    Fingerprint    `json:"fingerprint"`
	CreatedAt      time.Time      `json:"created_at"`
}
