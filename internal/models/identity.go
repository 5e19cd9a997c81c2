package models

import "time"

// Identity is the account the device currently acts as.
type Identity struct {
	ID        string    `json:"id"`
	Permanent bool      `json:"permanent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsZero reports whether no identity was ever established.
func (i Identity) IsZero() bool {
	return i.ID == ""
}
