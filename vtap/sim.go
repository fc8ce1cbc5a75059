package vtap

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pki"
	"github.com/sistema-id/smarttoken-provisioning/status"
)

// Simulator is an in-memory stand-in for the vendor token module. It keeps
// PIN and PKI registration state per process and reports the documented
// result codes, which makes local runs of the agent exercise the full
// pipeline without vendor binaries.
type Simulator struct {
	bus *events.Router
	log *slog.Logger

	mu             sync.Mutex
	pins           map[string]string
	pkiFuncs       map[pki.FuncID]bool
	pushRegistered bool
}

// NewSimulator creates a simulator publishing its setup broadcast on bus.
func NewSimulator(bus *events.Router, log *slog.Logger) *Simulator {
	return &Simulator{
		bus:      bus,
		log:      log,
		pins:     make(map[string]string),
		pkiFuncs: make(map[pki.FuncID]bool),
	}
}

// SetupVTap reports success through the setup-complete broadcast.
func (s *Simulator) SetupVTap(ctx context.Context) error {
	s.bus.Publish(events.Event{Kind: events.SetupComplete, SetupStatus: SetupSuccess})
	return nil
}

func (s *Simulator) CheckDeviceCompatibility(ctx context.Context) (int, error) {
	return DeviceWhitelisted, nil
}

func (s *Simulator) SendTroubleshootingLogs(ctx context.Context) (int, error) {
	return status.TroubleshootingLogsSuccess, nil
}

func (s *Simulator) GetLoadAckTokenFirmware(ctx context.Context, tokenSerial, apinHex string) (int, error) {
	if tokenSerial == "" || !isHex(apinHex) {
		return status.ConnectionFailed, nil
	}
	return status.LoadFirmwareSuccess, nil
}

func (s *Simulator) LoadTokenFirmware(ctx context.Context, tokenSerial, apinHex, downloadPath string) (int, error) {
	if tokenSerial == "" || !isHex(apinHex) || downloadPath == "" {
		return status.ConnectionFailed, nil
	}
	return status.LoadFirmwareSuccess, nil
}

func (s *Simulator) IsTokenRegistered(ctx context.Context, tokenSerial string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pins[tokenSerial]
	return ok, nil
}

func (s *Simulator) CreateTokenPIN(ctx context.Context, pin, tokenSerial string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pin == "" || tokenSerial == "" {
		return status.CreatePINFailed, nil
	}
	if _, ok := s.pins[tokenSerial]; ok {
		return status.CreatePINFailed, nil
	}
	s.pins[tokenSerial] = pin
	return status.CreatePINSuccess, nil
}

func (s *Simulator) CheckTokenPIN(ctx context.Context, pin string, force bool, tokenSerial string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.pins[tokenSerial]; ok && stored == pin {
		return status.CheckPINSuccess, nil
	}
	return status.CheckPINFailed, nil
}

func (s *Simulator) PushNotificationRegister(ctx context.Context, deviceID, pushToken string, pns interfaces.PNSType) (int, error) {
	if pushToken == "" {
		return status.ConnectionFailed, nil
	}
	s.mu.Lock()
	s.pushRegistered = true
	s.mu.Unlock()
	s.log.Debug("Push channel registered", "deviceId", deviceID, "pnsType", string(pns))
	return status.PushRegisterSuccess, nil
}

func (s *Simulator) IsPKIFunctionRegistered(ctx context.Context, id pki.FuncID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkiFuncs[id], nil
}

func (s *Simulator) RemovePKIFunction(ctx context.Context, id pki.FuncID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pkiFuncs, id)
	return nil
}

func (s *Simulator) GenerateCSRAndSend(ctx context.Context, id pki.FuncID, subject pki.DistinguishedName, pin string) (int, error) {
	if pin == "" {
		return status.ConnectionFailed, nil
	}
	if _, _, err := pki.CreateCSRWithRandomKey(subject); err != nil {
		return status.ConnectionFailed, nil
	}
	s.mu.Lock()
	s.pkiFuncs[id] = true
	s.mu.Unlock()
	return status.CertRegisterSuccess, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
