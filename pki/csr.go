package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
)

// Standard attribute OIDs that pkix.Name has no direct field for.
var (
	oidGivenName    = asn1.ObjectIdentifier{2, 5, 4, 42}
	oidSurname      = asn1.ObjectIdentifier{2, 5, 4, 4}
	oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

func (dn DistinguishedName) pkixName() pkix.Name {
	name := pkix.Name{
		CommonName:   dn.GivenName + " " + dn.Surname,
		SerialNumber: dn.SerialNumber,
	}
	if dn.Country != "" {
		name.Country = []string{dn.Country}
	}
	if dn.StateName != "" {
		name.Province = []string{dn.StateName}
	}
	if dn.LocalityName != "" {
		name.Locality = []string{dn.LocalityName}
	}
	if dn.OrganizationName != "" {
		name.Organization = []string{dn.OrganizationName}
	}
	if dn.OrganizationUnit != "" {
		name.OrganizationalUnit = []string{dn.OrganizationUnit}
	}

	name.ExtraNames = []pkix.AttributeTypeAndValue{
		{Type: oidGivenName, Value: dn.GivenName},
		{Type: oidSurname, Value: dn.Surname},
		{Type: oidEmailAddress, Value: dn.EmailAddress},
	}
	return name
}

// CreateCSRWithRandomKey generates a fresh ECDSA P-256 key and a PEM-encoded
// certificate signing request carrying the full subject.
//
// Returns the private key in PEM format and the CSR in PEM format.
func CreateCSRWithRandomKey(subject DistinguishedName) (keyPEM, csrPEM []byte, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	csrTemplate := x509.CertificateRequest{
		Subject:            subject.pkixName(),
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, privateKey)
	if err != nil {
		return nil, nil, err
	}
	csrPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes})

	return keyPEM, csrPEM, nil
}
