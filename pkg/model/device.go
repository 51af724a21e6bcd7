package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DeviceRegistration maps a user to the device that client actions target.
// Registrations are persisted; losing them on process restart would strand
// every client action after a deploy.
type DeviceRegistration struct {
	UserID       UserID    `firestore:"user_id" json:"user_id"`
	DeviceID     string    `firestore:"device_id" json:"device_id"`
	Platform     string    `firestore:"platform" json:"platform"`
	RegisteredAt time.Time `firestore:"registered_at" json:"registered_at"`
}

// Validate checks the registration fields
func (d *DeviceRegistration) Validate() error {
	if d.UserID == "" {
		return goerr.New("device registration user is empty")
	}
	if d.DeviceID == "" {
		return goerr.New("device registration device id is empty")
	}
	return nil
}
