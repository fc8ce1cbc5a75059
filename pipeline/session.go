package pipeline

import (
	"fmt"
	"maps"

	"github.com/sistema-id/smarttoken-provisioning/pki"
	"github.com/sistema-id/smarttoken-provisioning/status"
)

// Stage is a position in the provisioning state machine. Stages only advance
// forward and none may be skipped.
type Stage int

const (
	StageIdle Stage = iota
	StageUserCreated
	StageTokenAssigned
	StageFirmwareAcknowledged
	StageFirmwareLoaded
	StagePinRegistered
	StagePinVerified
	StagePushRegistered
	StageComplete
)

var stageNames = map[Stage]string{
	StageIdle:                 "Idle",
	StageUserCreated:          "UserCreated",
	StageTokenAssigned:        "TokenAssigned",
	StageFirmwareAcknowledged: "FirmwareAcknowledged",
	StageFirmwareLoaded:       "FirmwareLoaded",
	StagePinRegistered:        "PinRegistered",
	StagePinVerified:          "PinVerified",
	StagePushRegistered:       "PushRegistered",
	StageComplete:             "Complete",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText renders the stage name, also making Stage usable as a JSON map
// key.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name produced by MarshalText.
func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if name == string(text) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// Session holds the state of one user's end-to-end provisioning attempt. It
// is owned by the pipeline; all mutation flows through stage transitions.
type Session struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	UserID     string `json:"userId"`

	TokenSerial string `json:"tokenSerial"`
	// APINEncoded is the activation PIN as transported (base64). It is kept
	// so a failed firmware-ack stage can re-decode from the top on retry.
	APINEncoded string `json:"-"`
	APIN        []byte `json:"-"`
	APINHex     string `json:"-"`

	PIN       string `json:"-"`
	PushToken string `json:"-"`
	DeviceID  string `json:"deviceId"`

	Stage    Stage `json:"stage"`
	LastCode int   `json:"lastCode"`

	// StageStatus holds the per-stage result strings surfaced to the UI
	// layer ("Code: <code>, Message: <text>").
	StageStatus map[Stage]string `json:"stageStatus"`

	// RoleOutcomes holds the per-role certificate results. Partial success
	// is a valid terminal state; the roles are never collapsed into a single
	// pass/fail.
	RoleOutcomes map[pki.FuncID]status.Outcome `json:"-"`

	LastError string `json:"lastError,omitempty"`
}

func (s *Session) clone() Session {
	out := *s
	out.StageStatus = maps.Clone(s.StageStatus)
	out.RoleOutcomes = maps.Clone(s.RoleOutcomes)
	return out
}
