package interfaces

import (
	"context"

	"github.com/sistema-id/smarttoken-provisioning/pki"
)

// TokenClient is the boundary to the vendor secure-token (VTap) module. The
// module is a black box that receives the listed arguments and reports an
// integer status code; see the status package for the code table. All calls
// are potentially blocking I/O and honor the passed context.
type TokenClient interface {
	// SetupVTap initializes the token module. Completion is reported
	// asynchronously through a setup-complete broadcast, not a return value.
	SetupVTap(ctx context.Context) error

	// CheckDeviceCompatibility returns the whitelist/blacklist/greylist
	// classification code for this device.
	CheckDeviceCompatibility(ctx context.Context) (int, error)

	// SendTroubleshootingLogs uploads device diagnostics to the dashboard.
	SendTroubleshootingLogs(ctx context.Context) (int, error)

	// GetLoadAckTokenFirmware acknowledges the token firmware download for
	// the given serial and hex-encoded activation PIN.
	GetLoadAckTokenFirmware(ctx context.Context, tokenSerial, apinHex string) (int, error)

	// LoadTokenFirmware loads the downloaded token firmware from downloadPath.
	LoadTokenFirmware(ctx context.Context, tokenSerial, apinHex, downloadPath string) (int, error)

	// IsTokenRegistered reports whether a PIN has already been set for the
	// token serial.
	IsTokenRegistered(ctx context.Context, tokenSerial string) (bool, error)

	// CreateTokenPIN sets the initial PIN for the token.
	CreateTokenPIN(ctx context.Context, pin, tokenSerial string) (int, error)

	// CheckTokenPIN verifies the PIN against the token.
	CheckTokenPIN(ctx context.Context, pin string, force bool, tokenSerial string) (int, error)

	// PushNotificationRegister registers the device's push channel with the
	// token service.
	PushNotificationRegister(ctx context.Context, deviceID, pushToken string, pns PNSType) (int, error)

	// IsPKIFunctionRegistered reports whether the PKI function currently
	// holds a certificate.
	IsPKIFunctionRegistered(ctx context.Context, id pki.FuncID) (bool, error)

	// RemovePKIFunction revokes the function's certificate and clears its
	// registration. Removing an unregistered function is a no-op.
	RemovePKIFunction(ctx context.Context, id pki.FuncID) error

	// GenerateCSRAndSend generates a CSR for the function with the given
	// subject and PIN, submits it to the PKI server, and reports the result.
	GenerateCSRAndSend(ctx context.Context, id pki.FuncID, subject pki.DistinguishedName, pin string) (int, error)
}

// IdentityService is the TMS identity/token HTTP service consumed by the
// first two pipeline stages.
type IdentityService interface {
	// CreateUser registers the user with TMS and returns the assigned user
	// id. A transport failure, non-200 response, or empty body yields an
	// empty id and an error the caller surfaces as retryable.
	CreateUser(ctx context.Context, req UserRequest) (string, error)

	// AssignToken requests a token assignment for the given user.
	AssignToken(ctx context.Context, req TokenRequest) (*TokenAssignment, error)
}

// EngineRuntime is the vendor secure execution engine. Start blocks until the
// engine has processed the firmware image and returns the vendor boot code;
// a non-positive code means the boot failed. The remaining accessors are only
// valid after a successful Start.
type EngineRuntime interface {
	Start(firmware []byte) (int64, error)
	TroubleshootingID() string
	Password() []byte
	CustomerID() string
}

// PushTokenStore persists the device's push-notification token across
// process restarts.
type PushTokenStore interface {
	Save(ctx context.Context, token string) error
	// Load returns the stored token, or an empty string if none was saved.
	Load(ctx context.Context) (string, error)
}
