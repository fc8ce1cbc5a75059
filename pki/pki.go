// Package pki models the two certificate-issuance roles supported by the
// secure token and the renewal behavior driven by push messages.
package pki

// FuncID identifies a PKI function slot on the secure token. Each function is
// separately registrable and revocable.
type FuncID int

const (
	// FuncAuth is the ASP authentication function.
	FuncAuth FuncID = iota + 1

	// FuncSecureMessaging is the SMP secure-messaging function.
	FuncSecureMessaging
)

func (id FuncID) String() string {
	switch id {
	case FuncAuth:
		return "auth"
	case FuncSecureMessaging:
		return "secure-messaging"
	default:
		return "unknown"
	}
}

// SentinelPIN is passed for the secure-messaging role when generating its
// CSR. The secure-token service rejects an empty PIN as invalid input, and
// the messaging role has no user PIN of its own.
const SentinelPIN = "0"

// DistinguishedName is the certificate subject used for CSR generation.
type DistinguishedName struct {
	Country          string
	StateName        string
	LocalityName     string
	OrganizationName string
	OrganizationUnit string
	GivenName        string
	Surname          string
	SerialNumber     string
	EmailAddress     string
}

// DefaultSubject returns the fixed subject descriptor used for both roles
// during provisioning.
func DefaultSubject() DistinguishedName {
	return DistinguishedName{
		Country:          "ID",
		StateName:        "JKT",
		LocalityName:     "IDN",
		OrganizationName: "Sistema",
		OrganizationUnit: "IT",
		GivenName:        "Test",
		Surname:          "TestUser",
		SerialNumber:     "ABC123",
		EmailAddress:     "test@test.id",
	}
}
