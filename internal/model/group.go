package model

import "time"

// Group owns subscription offers; its owner is the seller of every slot.
type Group struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Profile is the local user record keyed by the identity provider subject.
type Profile struct {
	ID             string
	ExternalAuthID string
	Email          string
	DisplayName    string
	CreatedAt      time.Time
}
