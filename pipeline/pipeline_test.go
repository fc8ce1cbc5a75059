package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sistema-id/smarttoken-provisioning/engine"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pki"
	"github.com/sistema-id/smarttoken-provisioning/status"
	"github.com/sistema-id/smarttoken-provisioning/vtap"
)

type fakeIdentity struct {
	id        string
	createErr error

	assignment *interfaces.TokenAssignment
	assignErr  error
}

func (f *fakeIdentity) CreateUser(ctx context.Context, req interfaces.UserRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.id, nil
}

func (f *fakeIdentity) AssignToken(ctx context.Context, req interfaces.TokenRequest) (*interfaces.TokenAssignment, error) {
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	return f.assignment, nil
}

type fakeEngine struct {
	handle *engine.Handle
}

func (f *fakeEngine) Handle() (*engine.Handle, bool) {
	return f.handle, f.handle != nil
}

func readyEngine() *fakeEngine {
	return &fakeEngine{handle: &engine.Handle{
		BootCode:          1,
		TroubleshootingID: "ts-0001",
		CustomerID:        "7824",
	}}
}

func newTestPipeline(identity interfaces.IdentityService, token interfaces.TokenClient) *Pipeline {
	return New(Config{
		Identity:     identity,
		Token:        token,
		Engine:       readyEngine(),
		DownloadPath: "/tmp/token-firmware",
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func userRequest() interfaces.UserRequest {
	return interfaces.UserRequest{
		UserID:      "test@test.id",
		CreatedUser: "sistema_server",
		CustomerID:  "7824",
		NRIC:        "ABC123",
		FirstName:   "Test",
		LastName:    "Sistema",
		Country:     "ID",
		DeviceID:    "ts-0001",
	}
}

// driveToFirmwareLoaded advances a fresh pipeline to FirmwareLoaded using
// the provided mock for the token calls.
func driveToFirmwareLoaded(t *testing.T, p *Pipeline, token *vtap.MockClient) {
	t.Helper()
	ctx := context.Background()

	id, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	require.Equal(t, "U1", id)

	assignment, err := p.AssignToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "T1", assignment.Token)

	token.On("GetLoadAckTokenFirmware", mock.Anything, "T1", "414243").Return(status.LoadFirmwareSuccess, nil).Once()
	out, err := p.AcknowledgeFirmware(ctx)
	require.NoError(t, err)
	require.True(t, out.Advances())

	token.On("LoadTokenFirmware", mock.Anything, "T1", "414243", "/tmp/token-firmware").Return(status.LoadFirmwareSuccess, nil).Once()
	out, err = p.LoadFirmware(ctx)
	require.NoError(t, err)
	require.True(t, out.Advances())
}

func TestPipelineEndToEnd(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	driveToFirmwareLoaded(t, p, token)

	token.On("IsTokenRegistered", mock.Anything, "T1").Return(false, nil).Once()
	token.On("CreateTokenPIN", mock.Anything, "111111", "T1").Return(status.CreatePINSuccess, nil).Once()
	out, err := p.RegisterPIN(ctx, "111111")
	require.NoError(t, err)
	require.True(t, out.Advances())

	token.On("CheckTokenPIN", mock.Anything, "111111", false, "T1").Return(status.CheckPINSuccess, nil).Once()
	out, err = p.VerifyPIN(ctx, "111111")
	require.NoError(t, err)
	require.True(t, out.Advances())

	token.On("IsPKIFunctionRegistered", mock.Anything, pki.FuncAuth).Return(false, nil).Once()
	token.On("IsPKIFunctionRegistered", mock.Anything, pki.FuncSecureMessaging).Return(false, nil).Once()
	token.On("PushNotificationRegister", mock.Anything, "ts-0001", "fcm-token", interfaces.PNSTypeFCM).Return(status.PushRegisterSuccess, nil).Once()
	out, err = p.RegisterPush(ctx, "fcm-token")
	require.NoError(t, err)
	require.True(t, out.Advances())

	subject := pki.DefaultSubject()
	token.On("GenerateCSRAndSend", mock.Anything, pki.FuncAuth, subject, "111111").Return(status.CertRegisterSuccess, nil).Once()
	token.On("GenerateCSRAndSend", mock.Anything, pki.FuncSecureMessaging, subject, pki.SentinelPIN).Return(status.CertRegisterSuccess, nil).Once()
	outcomes, err := p.IssueCertificates(ctx)
	require.NoError(t, err)

	assert.Equal(t, status.ClassSuccess, outcomes[pki.FuncAuth].Class)
	assert.Equal(t, status.ClassSuccess, outcomes[pki.FuncSecureMessaging].Class)

	snap, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, StageComplete, snap.Stage)
	token.AssertExpectations(t)
}

func TestPipelinePartialCertificateFailure(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	driveToFirmwareLoaded(t, p, token)

	token.On("IsTokenRegistered", mock.Anything, "T1").Return(false, nil).Once()
	token.On("CreateTokenPIN", mock.Anything, "111111", "T1").Return(status.CreatePINSuccess, nil).Once()
	_, err := p.RegisterPIN(ctx, "111111")
	require.NoError(t, err)

	token.On("CheckTokenPIN", mock.Anything, "111111", false, "T1").Return(status.CheckPINSuccess, nil).Once()
	_, err = p.VerifyPIN(ctx, "111111")
	require.NoError(t, err)

	token.On("IsPKIFunctionRegistered", mock.Anything, mock.Anything).Return(false, nil).Twice()
	token.On("PushNotificationRegister", mock.Anything, "ts-0001", "fcm-token", interfaces.PNSTypeFCM).Return(status.PushRegisterSuccess, nil).Once()
	_, err = p.RegisterPush(ctx, "fcm-token")
	require.NoError(t, err)

	token.On("GenerateCSRAndSend", mock.Anything, pki.FuncAuth, mock.Anything, "111111").Return(status.CertRegisterSuccess, nil).Once()
	token.On("GenerateCSRAndSend", mock.Anything, pki.FuncSecureMessaging, mock.Anything, pki.SentinelPIN).Return(41099, nil).Once()
	outcomes, err := p.IssueCertificates(ctx)
	require.NoError(t, err)

	assert.Equal(t, status.ClassSuccess, outcomes[pki.FuncAuth].Class, "auth success must not be masked")
	assert.Equal(t, status.ClassUnknown, outcomes[pki.FuncSecureMessaging].Class)
	assert.Equal(t, 41099, outcomes[pki.FuncSecureMessaging].Code)

	snap, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, StageComplete, snap.Stage, "partial success is a valid terminal state")
	assert.Len(t, snap.RoleOutcomes, 2)
}

func TestPipelineStageOrderEnforced(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	_, err = p.AssignToken(ctx)
	require.NoError(t, err)

	// PIN registration without a loaded firmware must be rejected.
	_, err = p.RegisterPIN(ctx, "111111")
	var orderErr *StageOrderError
	require.ErrorAs(t, err, &orderErr)
	assert.Equal(t, StageTokenAssigned, orderErr.Current)
	assert.Equal(t, StageFirmwareLoaded, orderErr.Required)

	token.AssertNotCalled(t, "CreateTokenPIN", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineIdempotentPINRegistration(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)

	driveToFirmwareLoaded(t, p, token)

	token.On("IsTokenRegistered", mock.Anything, "T1").Return(true, nil).Once()
	out, err := p.RegisterPIN(context.Background(), "111111")
	require.NoError(t, err)
	assert.True(t, out.Advances())

	snap, _ := p.Snapshot()
	assert.Equal(t, StagePinRegistered, snap.Stage)
	token.AssertNotCalled(t, "CreateTokenPIN", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineRetryAfterUnknownStatus(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	_, err = p.AssignToken(ctx)
	require.NoError(t, err)

	token.On("GetLoadAckTokenFirmware", mock.Anything, "T1", "414243").Return(40699, nil).Once()
	out, err := p.AcknowledgeFirmware(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.ClassUnknown, out.Class)

	snap, _ := p.Snapshot()
	assert.Equal(t, StageTokenAssigned, snap.Stage, "unknown status must not advance")

	// Retrying the trigger re-decodes and re-calls from the top.
	token.On("GetLoadAckTokenFirmware", mock.Anything, "T1", "414243").Return(status.TokenDownloadSuccess, nil).Once()
	out, err = p.AcknowledgeFirmware(ctx)
	require.NoError(t, err)
	assert.True(t, out.Advances())

	snap, _ = p.Snapshot()
	assert.Equal(t, StageFirmwareAcknowledged, snap.Stage)
}

func TestPipelineAPINHexIsLowercase(t *testing.T) {
	// "q80=" decodes to 0xAB 0xCD; the token service expects "abcd", never
	// "ABCD".
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "q80="}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	_, err = p.AssignToken(ctx)
	require.NoError(t, err)

	token.On("GetLoadAckTokenFirmware", mock.Anything, "T1", "abcd").Return(status.LoadFirmwareSuccess, nil).Once()
	out, err := p.AcknowledgeFirmware(ctx)
	require.NoError(t, err)
	require.True(t, out.Advances())

	token.On("LoadTokenFirmware", mock.Anything, "T1", "abcd", "/tmp/token-firmware").Return(status.LoadFirmwareSuccess, nil).Once()
	out, err = p.LoadFirmware(ctx)
	require.NoError(t, err)
	require.True(t, out.Advances())

	token.AssertExpectations(t)
}

func TestPipelineCreateUserNetworkFailure(t *testing.T) {
	identity := &fakeIdentity{createErr: context.DeadlineExceeded}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	id, err := p.CreateUser(ctx, userRequest())
	assert.Empty(t, id, "failure must yield an empty result")
	assert.Error(t, err)

	snap, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, StageIdle, snap.Stage, "session must remain Idle and retryable")

	select {
	case msg := <-p.Errors():
		assert.Contains(t, msg, "user creation failed")
	default:
		t.Fatal("expected a one-shot error notification")
	}

	// Retry succeeds.
	identity.createErr = nil
	identity.id = "U1"
	id, err = p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	assert.Equal(t, "U1", id)
}

func TestPipelineRequiresEngine(t *testing.T) {
	p := New(Config{
		Identity: &fakeIdentity{id: "U1"},
		Token:    &vtap.MockClient{},
		Engine:   &fakeEngine{},
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := p.CreateUser(context.Background(), userRequest())
	assert.ErrorIs(t, err, ErrEngineNotReady)
}

func TestPipelineSingleOutstandingCall(t *testing.T) {
	identity := &fakeIdentity{id: "U1", assignment: &interfaces.TokenAssignment{Token: "T1", APIN: "QUJD"}}
	token := &vtap.MockClient{}
	p := newTestPipeline(identity, token)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)
	_, err = p.AssignToken(ctx)
	require.NoError(t, err)

	var overlapping error
	token.On("GetLoadAckTokenFirmware", mock.Anything, "T1", "414243").
		Run(func(mock.Arguments) {
			_, overlapping = p.LoadFirmware(ctx)
		}).
		Return(status.LoadFirmwareSuccess, nil).Once()

	_, err = p.AcknowledgeFirmware(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, overlapping, ErrCallInFlight)
}

func TestPipelineResetDiscardsSession(t *testing.T) {
	identity := &fakeIdentity{id: "U1"}
	p := newTestPipeline(identity, &vtap.MockClient{})
	ctx := context.Background()

	_, err := p.CreateUser(ctx, userRequest())
	require.NoError(t, err)

	p.Reset()
	_, ok := p.Snapshot()
	assert.False(t, ok)

	_, err = p.AssignToken(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}
