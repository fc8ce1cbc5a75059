// Package pipeline drives the multi-step remote provisioning workflow:
// create identity, assign token, download and load token firmware, set and
// verify the PIN, register the push channel, and issue the PKI certificates.
// Each stage is invoked by a distinct caller trigger and gated by the status
// code the secure-token service returns for the previous call.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/sistema-id/smarttoken-provisioning/engine"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/metrics"
	"github.com/sistema-id/smarttoken-provisioning/pki"
	"github.com/sistema-id/smarttoken-provisioning/status"
)

var (
	// ErrEngineNotReady is returned while the secure engine has not booted.
	ErrEngineNotReady = errors.New("secure engine not ready")

	// ErrNoSession is returned when a stage other than user creation is
	// triggered without an active session.
	ErrNoSession = errors.New("no active provisioning session")

	// ErrCallInFlight is returned when a trigger arrives while another call
	// for the session is still outstanding.
	ErrCallInFlight = errors.New("another provisioning call is in flight")
)

// StageOrderError reports a trigger that violates the stage order.
type StageOrderError struct {
	Current  Stage
	Required Stage
}

func (e *StageOrderError) Error() string {
	return fmt.Sprintf("stage order violation: session is at %s, trigger requires %s", e.Current, e.Required)
}

// EngineState exposes the booted engine handle to the pipeline.
type EngineState interface {
	Handle() (*engine.Handle, bool)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Identity interfaces.IdentityService
	Token    interfaces.TokenClient
	Engine   EngineState

	// Store persists the push token; optional.
	Store interfaces.PushTokenStore

	// DownloadPath is passed to the firmware-load call.
	DownloadPath string

	Log *slog.Logger
}

// Pipeline is the ordered state machine for one provisioning session. At
// most one session is active at a time, and the session holds at most one
// outstanding call.
type Pipeline struct {
	identity     interfaces.IdentityService
	token        interfaces.TokenClient
	engine       EngineState
	store        interfaces.PushTokenStore
	downloadPath string
	log          *slog.Logger

	busy atomic.Bool

	mu      sync.Mutex
	session *Session

	errs chan string
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		identity:     cfg.Identity,
		token:        cfg.Token,
		engine:       cfg.Engine,
		store:        cfg.Store,
		downloadPath: cfg.DownloadPath,
		log:          cfg.Log,
		errs:         make(chan string, 8),
	}
}

// Errors is the one-shot notification channel for transient failures, the
// toast equivalent of the UI layer.
func (p *Pipeline) Errors() <-chan string { return p.errs }

// Loading reports whether a call is currently outstanding.
func (p *Pipeline) Loading() bool { return p.busy.Load() }

// Snapshot returns a copy of the active session state, or false if no
// session exists.
func (p *Pipeline) Snapshot() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return Session{}, false
	}
	return p.session.clone(), true
}

// Reset discards the active session. The result of an in-flight call is
// still written to the discarded session's state but has no UI-visible
// effect.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}

// begin acquires the single-outstanding-call slot and checks the stage
// guard. On success the caller must release the slot with finish.
func (p *Pipeline) begin(required Stage) (*Session, error) {
	if _, ok := p.engine.Handle(); !ok {
		return nil, ErrEngineNotReady
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrCallInFlight
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	if s == nil {
		p.busy.Store(false)
		return nil, ErrNoSession
	}
	if s.Stage != required {
		p.busy.Store(false)
		return nil, &StageOrderError{Current: s.Stage, Required: required}
	}
	return s, nil
}

func (p *Pipeline) finish() { p.busy.Store(false) }

// active reports whether s is still the session a consumer observes.
func (p *Pipeline) active(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session == s
}

// notify surfaces a transient failure through the error channel, dropping
// the message when nobody is draining.
func (p *Pipeline) notify(s *Session, msg string) {
	p.mu.Lock()
	s.LastError = msg
	stillActive := p.session == s
	p.mu.Unlock()
	if !stillActive {
		return
	}
	select {
	case p.errs <- msg:
	default:
	}
}

// record stores a stage outcome and advances the session when the code
// allows it.
func (p *Pipeline) record(s *Session, stage Stage, out status.Outcome, next Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.LastCode = out.Code
	s.StageStatus[stage] = out.String()
	if out.Advances() {
		s.Stage = next
	}
	metrics.IncStageResult(stage.String(), out.Class.String())
}

// CreateUser starts a session if none exists and calls the identity-create
// endpoint. A network failure leaves the session in Idle with an empty
// result; re-invoking retries.
func (p *Pipeline) CreateUser(ctx context.Context, req interfaces.UserRequest) (string, error) {
	if _, ok := p.engine.Handle(); !ok {
		return "", ErrEngineNotReady
	}
	if !p.busy.CompareAndSwap(false, true) {
		return "", ErrCallInFlight
	}
	defer p.finish()

	p.mu.Lock()
	if p.session == nil {
		p.session = &Session{
			ID:           uuid.NewString(),
			CustomerID:   req.CustomerID,
			DeviceID:     req.DeviceID,
			Stage:        StageIdle,
			StageStatus:  make(map[Stage]string),
			RoleOutcomes: make(map[pki.FuncID]status.Outcome),
		}
		p.log.Info("Provisioning session started", "session", p.session.ID)
	}
	s := p.session
	if s.Stage != StageIdle {
		p.mu.Unlock()
		return "", &StageOrderError{Current: s.Stage, Required: StageIdle}
	}
	p.mu.Unlock()

	id, err := p.identity.CreateUser(ctx, req)
	if err != nil {
		p.log.Warn("User creation failed", "err", err)
		metrics.IncStageResult(StageIdle.String(), "network_failure")
		p.notify(s, fmt.Sprintf("user creation failed: %v", err))
		return "", err
	}

	p.mu.Lock()
	s.UserID = id
	s.Stage = StageUserCreated
	s.StageStatus[StageIdle] = "User Created"
	p.mu.Unlock()
	metrics.IncStageResult(StageIdle.String(), status.ClassSuccess.String())
	p.log.Info("User created", "userId", id)
	return id, nil
}

// AssignToken calls the token-assign endpoint. On failure it returns a
// null-valued token record and the session stays in UserCreated.
func (p *Pipeline) AssignToken(ctx context.Context) (*interfaces.TokenAssignment, error) {
	s, err := p.begin(StageUserCreated)
	if err != nil {
		return nil, err
	}
	defer p.finish()

	assignment, err := p.identity.AssignToken(ctx, interfaces.TokenRequest{ID: s.UserID, CustomerID: s.CustomerID})
	if err != nil {
		p.log.Warn("Token assignment failed", "err", err)
		metrics.IncStageResult(StageUserCreated.String(), "network_failure")
		p.notify(s, fmt.Sprintf("token assignment failed: %v", err))
		return &interfaces.TokenAssignment{}, err
	}
	if assignment.Token == "" || assignment.APIN == "" {
		p.log.Warn("Token assignment incomplete", "token", assignment.Token)
		p.notify(s, "token or apin missing in assignment")
		return assignment, errors.New("token assignment incomplete")
	}

	p.mu.Lock()
	s.TokenSerial = assignment.Token
	s.APINEncoded = assignment.APIN
	s.Stage = StageTokenAssigned
	s.StageStatus[StageUserCreated] = "Token Assigned"
	p.mu.Unlock()
	metrics.IncStageResult(StageUserCreated.String(), status.ClassSuccess.String())
	p.log.Info("Token assigned", "tokenSerial", assignment.Token)
	return assignment, nil
}

// AcknowledgeFirmware decodes the APIN from its transport encoding and
// acknowledges the token firmware download. Codes 40600 and 40608 both
// advance; anything else leaves the stage to be retried from the top,
// re-decoding included.
func (p *Pipeline) AcknowledgeFirmware(ctx context.Context) (status.Outcome, error) {
	s, err := p.begin(StageTokenAssigned)
	if err != nil {
		return status.Outcome{}, err
	}
	defer p.finish()

	apin, err := base64.StdEncoding.DecodeString(s.APINEncoded)
	if err != nil {
		p.notify(s, fmt.Sprintf("apin decode failed: %v", err))
		return status.Outcome{}, fmt.Errorf("decode apin: %w", err)
	}
	// The token service has always received lowercase hex; keep the case.
	apinHex := hex.EncodeToString(apin)

	code, err := p.token.GetLoadAckTokenFirmware(ctx, s.TokenSerial, apinHex)
	if err != nil {
		p.notify(s, fmt.Sprintf("firmware download ack failed: %v", err))
		return status.Outcome{}, err
	}

	out := status.Classify(code)
	p.mu.Lock()
	s.APIN = apin
	s.APINHex = apinHex
	p.mu.Unlock()
	p.record(s, StageTokenAssigned, out, StageFirmwareAcknowledged)
	p.log.Info("Firmware download acknowledged", "code", code, "advanced", out.Advances())
	return out, nil
}

// LoadFirmware loads the downloaded token firmware. Only code 40608
// advances.
func (p *Pipeline) LoadFirmware(ctx context.Context) (status.Outcome, error) {
	s, err := p.begin(StageFirmwareAcknowledged)
	if err != nil {
		return status.Outcome{}, err
	}
	defer p.finish()

	code, err := p.token.LoadTokenFirmware(ctx, s.TokenSerial, s.APINHex, p.downloadPath)
	if err != nil {
		p.notify(s, fmt.Sprintf("firmware load failed: %v", err))
		return status.Outcome{}, err
	}

	out := status.Classify(code)
	if code != status.LoadFirmwareSuccess && out.Advances() {
		// 40600 is a download ack, not a load result; only 40608 counts here.
		out.Class = status.ClassUnknown
	}
	p.record(s, StageFirmwareAcknowledged, out, StageFirmwareLoaded)
	p.log.Info("Firmware load finished", "code", code, "advanced", out.Advances())
	return out, nil
}

// RegisterPIN sets the token PIN. A token that is already registered is an
// idempotent skip: no create-PIN call is issued and the stage advances
// directly.
func (p *Pipeline) RegisterPIN(ctx context.Context, pin string) (status.Outcome, error) {
	s, err := p.begin(StageFirmwareLoaded)
	if err != nil {
		return status.Outcome{}, err
	}
	defer p.finish()

	registered, err := p.token.IsTokenRegistered(ctx, s.TokenSerial)
	if err != nil {
		p.notify(s, fmt.Sprintf("token registration check failed: %v", err))
		return status.Outcome{}, err
	}
	if registered {
		out := status.Outcome{
			Code:    status.CreatePINSuccess,
			Class:   status.ClassSuccess,
			Message: "Token Already Registered",
		}
		p.mu.Lock()
		s.PIN = pin
		p.mu.Unlock()
		p.record(s, StageFirmwareLoaded, out, StagePinRegistered)
		p.log.Info("Token already registered, skipping PIN creation", "tokenSerial", s.TokenSerial)
		return out, nil
	}

	code, err := p.token.CreateTokenPIN(ctx, pin, s.TokenSerial)
	if err != nil {
		p.notify(s, fmt.Sprintf("pin creation failed: %v", err))
		return status.Outcome{}, err
	}

	out := status.Classify(code)
	if out.Advances() {
		p.mu.Lock()
		s.PIN = pin
		p.mu.Unlock()
	}
	p.record(s, StageFirmwareLoaded, out, StagePinRegistered)
	p.log.Info("PIN registration finished", "code", code, "advanced", out.Advances())
	return out, nil
}

// VerifyPIN checks the PIN against the token. Code 40800 advances; 40801 is
// a defined PIN-mismatch failure.
func (p *Pipeline) VerifyPIN(ctx context.Context, pin string) (status.Outcome, error) {
	s, err := p.begin(StagePinRegistered)
	if err != nil {
		return status.Outcome{}, err
	}
	defer p.finish()

	code, err := p.token.CheckTokenPIN(ctx, pin, false, s.TokenSerial)
	if err != nil {
		p.notify(s, fmt.Sprintf("pin check failed: %v", err))
		return status.Outcome{}, err
	}

	out := status.Classify(code)
	if out.Advances() {
		p.mu.Lock()
		s.PIN = pin
		p.mu.Unlock()
	}
	p.record(s, StagePinRegistered, out, StagePinVerified)
	p.log.Info("PIN verification finished", "code", code, "advanced", out.Advances())
	return out, nil
}

// RegisterPush removes any previously registered PKI functions for both
// roles, then registers the device's push channel. Code 41014 advances.
// When pushToken is empty the persisted token is used.
func (p *Pipeline) RegisterPush(ctx context.Context, pushToken string) (status.Outcome, error) {
	s, err := p.begin(StagePinVerified)
	if err != nil {
		return status.Outcome{}, err
	}
	defer p.finish()

	for _, fn := range []pki.FuncID{pki.FuncAuth, pki.FuncSecureMessaging} {
		registered, err := p.token.IsPKIFunctionRegistered(ctx, fn)
		if err != nil {
			p.notify(s, fmt.Sprintf("pki registration check failed: %v", err))
			return status.Outcome{}, err
		}
		if !registered {
			continue
		}
		if err := p.token.RemovePKIFunction(ctx, fn); err != nil {
			p.notify(s, fmt.Sprintf("pki function removal failed: %v", err))
			return status.Outcome{}, err
		}
		p.log.Info("Stale PKI function removed before push registration", "function", fn.String())
	}

	if pushToken == "" && p.store != nil {
		stored, err := p.store.Load(ctx)
		if err != nil {
			p.log.Warn("Push token load failed", "err", err)
		}
		pushToken = stored
	}

	code, err := p.token.PushNotificationRegister(ctx, s.DeviceID, pushToken, interfaces.PNSTypeFCM)
	if err != nil {
		p.notify(s, fmt.Sprintf("push registration failed: %v", err))
		return status.Outcome{}, err
	}

	out := status.Classify(code)
	if out.Advances() {
		p.mu.Lock()
		s.PushToken = pushToken
		p.mu.Unlock()
		if p.store != nil && pushToken != "" {
			if err := p.store.Save(ctx, pushToken); err != nil {
				p.log.Warn("Push token persist failed", "err", err)
			}
		}
	}
	p.record(s, StagePinVerified, out, StagePushRegistered)
	p.log.Info("Push registration finished", "code", code, "advanced", out.Advances())
	return out, nil
}

// IssueCertificates requests certificates for the auth role (with the user's
// PIN) and the secure-messaging role (with the sentinel PIN). Each role
// reports independently; a partial success is a valid terminal state. The
// session reaches Complete once both calls have reported.
func (p *Pipeline) IssueCertificates(ctx context.Context) (map[pki.FuncID]status.Outcome, error) {
	s, err := p.begin(StagePushRegistered)
	if err != nil {
		return nil, err
	}
	defer p.finish()

	subject := pki.DefaultSubject()

	authCode, err := p.token.GenerateCSRAndSend(ctx, pki.FuncAuth, subject, s.PIN)
	if err != nil {
		p.notify(s, fmt.Sprintf("auth certificate request failed: %v", err))
		return nil, err
	}
	msgCode, err := p.token.GenerateCSRAndSend(ctx, pki.FuncSecureMessaging, subject, pki.SentinelPIN)
	if err != nil {
		p.notify(s, fmt.Sprintf("secure-messaging certificate request failed: %v", err))
		return nil, err
	}

	outcomes := map[pki.FuncID]status.Outcome{
		pki.FuncAuth:            status.Classify(authCode),
		pki.FuncSecureMessaging: status.Classify(msgCode),
	}

	p.mu.Lock()
	s.RoleOutcomes = outcomes
	s.Stage = StageComplete
	s.LastCode = msgCode
	s.StageStatus[StagePushRegistered] = fmt.Sprintf("%s: %s; %s: %s",
		pki.FuncAuth, outcomes[pki.FuncAuth],
		pki.FuncSecureMessaging, outcomes[pki.FuncSecureMessaging])
	p.mu.Unlock()

	for role, out := range outcomes {
		metrics.IncStageResult("Certificate_"+role.String(), out.Class.String())
	}
	p.log.Info("Certificate issuance finished",
		"authCode", authCode,
		"secureMessagingCode", msgCode)
	return outcomes, nil
}
