package pki

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCSRWithRandomKey(t *testing.T) {
	keyPEM, csrPEM, err := CreateCSRWithRandomKey(DefaultSubject())
	require.NoError(t, err)

	keyBlock, _ := pem.Decode(keyPEM)
	require.NotNil(t, keyBlock)
	assert.Equal(t, "PRIVATE KEY", keyBlock.Type)
	_, err = x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)

	csrBlock, _ := pem.Decode(csrPEM)
	require.NotNil(t, csrBlock)
	require.Equal(t, "CERTIFICATE REQUEST", csrBlock.Type)

	csr, err := x509.ParseCertificateRequest(csrBlock.Bytes)
	require.NoError(t, err)
	require.NoError(t, csr.CheckSignature())

	assert.Equal(t, []string{"ID"}, csr.Subject.Country)
	assert.Equal(t, []string{"JKT"}, csr.Subject.Province)
	assert.Equal(t, []string{"Sistema"}, csr.Subject.Organization)
	assert.Equal(t, "ABC123", csr.Subject.SerialNumber)
	assert.Equal(t, "Test TestUser", csr.Subject.CommonName)
}

func TestFuncIDString(t *testing.T) {
	assert.Equal(t, "auth", FuncAuth.String())
	assert.Equal(t, "secure-messaging", FuncSecureMessaging.String())
	assert.Equal(t, "unknown", FuncID(99).String())
}
