// Package interfaces defines the contracts between the provisioning
// components without implementation details: the secure-token module
// boundary, the identity (TMS) service, the engine runtime, and the shared
// data types crossing those boundaries.
package interfaces

import "time"

// PNSType selects the push-notification service backing a push registration.
type PNSType string

const (
	PNSTypeFCM PNSType = "FCM"
	PNSTypeHMS PNSType = "HMS"
)

// UserRequest is the TMS user-create payload.
type UserRequest struct {
	UserID      string `json:"userId"`
	CreatedUser string `json:"createdUser"`
	CustomerID  string `json:"customerId"`
	// NRIC is the national ID of the user.
	NRIC      string `json:"nric"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Country   string `json:"country"`
	DeviceID  string `json:"deviceId"`
}

// TokenRequest is the TMS token-assign payload.
type TokenRequest struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
}

// TokenAssignment is the TMS token-assign response: the token serial and the
// activation PIN in its transport (base64) encoding.
type TokenAssignment struct {
	Token string `json:"token"`
	APIN  string `json:"apin"`
}

// ThreatReport is one detected threat from a completed device scan.
type ThreatReport struct {
	Descriptor string    `json:"descriptor"`
	DetectedAt time.Time `json:"detectedAt"`
}
