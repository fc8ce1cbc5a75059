// Package status interprets the integer result codes returned by the
// secure-token (VTap) service. The code values are contract constants of the
// external service and must not be changed; callers pattern-match on the
// Outcome classification instead of re-comparing raw codes.
package status

import "fmt"

// Result codes documented by the secure-token service.
const (
	TokenDownloadSuccess       = 40600
	LoadFirmwareSuccess        = 40608
	CreatePINSuccess           = 40700
	CreatePINFailed            = 40701
	CheckPINSuccess            = 40800
	CheckPINFailed             = 40801
	PushRegisterSuccess        = 41014
	CertRegisterSuccess        = 41100
	TroubleshootingLogsSuccess = 40502
	TroubleshootingLogsFailed  = 40503
	ConnectionFailed           = 41012
)

// Class is the closed set of outcome classifications for a result code.
type Class int

const (
	// ClassUnknown marks a code absent from the table. Unknown codes are
	// surfaced with the raw value for diagnosis and stay retryable; they are
	// never treated as fatal.
	ClassUnknown Class = iota

	// ClassSuccess marks a code that advances the calling stage.
	ClassSuccess

	// ClassDefinedFailure marks a documented non-success code. The cause is
	// known, so the user-facing message names it, but the stage does not
	// advance.
	ClassDefinedFailure
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassDefinedFailure:
		return "defined_failure"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one raw status code.
type Outcome struct {
	Code    int
	Class   Class
	Message string
}

// Advances reports whether the code lets the calling stage transition
// forward.
func (o Outcome) Advances() bool {
	return o.Class == ClassSuccess
}

// String renders the outcome in the form surfaced to the UI layer.
func (o Outcome) String() string {
	return fmt.Sprintf("Code: %d, Message: %s", o.Code, o.Message)
}

type entry struct {
	class   Class
	message string
}

var table = map[int]entry{
	TokenDownloadSuccess:       {ClassSuccess, "Token Download Success"},
	LoadFirmwareSuccess:        {ClassSuccess, "Load Firmware Success"},
	CreatePINSuccess:           {ClassSuccess, "Create PIN Successful"},
	CreatePINFailed:            {ClassDefinedFailure, "Create PIN Failed"},
	CheckPINSuccess:            {ClassSuccess, "Check PIN Success"},
	CheckPINFailed:             {ClassDefinedFailure, "Check PIN Failed"},
	PushRegisterSuccess:        {ClassSuccess, "Register Push Notification Success"},
	CertRegisterSuccess:        {ClassSuccess, "Certificate Registered Successfully"},
	TroubleshootingLogsSuccess: {ClassSuccess, "Send Troubleshooting Logs Success"},
	TroubleshootingLogsFailed:  {ClassDefinedFailure, "Send Troubleshooting Logs Failed"},
	ConnectionFailed:           {ClassDefinedFailure, "Connection Failed"},
}

// Classify maps a raw status code to its outcome. Codes absent from the table
// classify as ClassUnknown.
func Classify(code int) Outcome {
	if e, ok := table[code]; ok {
		return Outcome{Code: code, Class: e.class, Message: e.message}
	}
	return Outcome{Code: code, Class: ClassUnknown, Message: "Unknown Status"}
}
