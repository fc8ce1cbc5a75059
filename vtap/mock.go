package vtap

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pki"
)

// MockClient is a testify mock of the token-module boundary for use in
// tests.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SetupVTap(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) CheckDeviceCompatibility(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) SendTroubleshootingLogs(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) GetLoadAckTokenFirmware(ctx context.Context, tokenSerial, apinHex string) (int, error) {
	args := m.Called(ctx, tokenSerial, apinHex)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) LoadTokenFirmware(ctx context.Context, tokenSerial, apinHex, downloadPath string) (int, error) {
	args := m.Called(ctx, tokenSerial, apinHex, downloadPath)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) IsTokenRegistered(ctx context.Context, tokenSerial string) (bool, error) {
	args := m.Called(ctx, tokenSerial)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) CreateTokenPIN(ctx context.Context, pin, tokenSerial string) (int, error) {
	args := m.Called(ctx, pin, tokenSerial)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) CheckTokenPIN(ctx context.Context, pin string, force bool, tokenSerial string) (int, error) {
	args := m.Called(ctx, pin, force, tokenSerial)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) PushNotificationRegister(ctx context.Context, deviceID, pushToken string, pns interfaces.PNSType) (int, error) {
	args := m.Called(ctx, deviceID, pushToken, pns)
	return args.Int(0), args.Error(1)
}

func (m *MockClient) IsPKIFunctionRegistered(ctx context.Context, id pki.FuncID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) RemovePKIFunction(ctx context.Context, id pki.FuncID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClient) GenerateCSRAndSend(ctx context.Context, id pki.FuncID, subject pki.DistinguishedName, pin string) (int, error) {
	args := m.Called(ctx, id, subject, pin)
	return args.Int(0), args.Error(1)
}
