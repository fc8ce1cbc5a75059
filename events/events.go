// Package events routes system-wide broadcast notifications crossing the
// engine/app boundary into typed internal events. The wire-level action and
// extra-key literals are fixed by the existing event producers and must be
// preserved for interoperability.
package events

import "github.com/sistema-id/smarttoken-provisioning/interfaces"

// Kind is a broadcast action string as emitted by the engine and token
// layers.
type Kind string

const (
	// ProfileLoaded signals that the protection profile finished loading.
	// Informational only.
	ProfileLoaded Kind = "vkey.android.vguard.PROFILE_LOADED"

	// EngineReady signals that the engine layer is ready to boot; carries the
	// signed firmware return code.
	EngineReady Kind = "vkey.android.vguard.VOS_READY"

	// ScanComplete signals a finished device threat scan; carries the list of
	// detected threats.
	ScanComplete Kind = "vkey.android.vguard.ACTION_SCAN_COMPLETE"

	// SetupComplete signals that token-module setup finished; carries the
	// integer setup status.
	SetupComplete Kind = "vkey.android.vtap.VTAP_SETUP"

	// PushMessage is an incoming push notification; carries the message id
	// and type.
	PushMessage Kind = "push_notification"
)

// Extra keys used by the event producers.
const (
	FirmwareReturnCodeKey = "vkey.android.vguard.FIRMWARE_RETURN_CODE"
	SetupStatusKey        = "vkey.android.vtap.VTAP_SETUP_STATUS"
	MessageIDKey          = "messageId"
	MessageTypeKey        = "messageType"
)

// Recognized push-message types.
const (
	MessageTypeASPCertRenew = "ASP_CERT_RENEW"
	MessageTypeSMPCertRenew = "SMP_CERT_RENEW"
)

// Event is one typed signal crossing the engine/app boundary. Only the
// fields relevant to the Kind are populated.
type Event struct {
	Kind Kind

	// FirmwareReturnCode accompanies EngineReady.
	FirmwareReturnCode int64

	// SetupStatus accompanies SetupComplete.
	SetupStatus int

	// Threats accompanies ScanComplete.
	Threats []interfaces.ThreatReport

	// MessageID and MessageType accompany PushMessage.
	MessageID   string
	MessageType string
}
