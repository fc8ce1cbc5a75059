// Package vtap is the application-side boundary to the vendor secure-token
// module. The module itself is proprietary; this package carries its setup
// and device-compatibility codes, a deterministic in-memory simulator for
// development, and a mock client for tests. The per-call result codes are
// defined in the status package.
package vtap

// Setup result codes reported through the setup-complete broadcast.
const (
	SetupSuccess = 40100
)

// Device-compatibility classification codes.
const (
	DeviceWhitelisted = 40200
	DeviceBlacklisted = 40201
	DeviceGreylisted  = 40202
)
