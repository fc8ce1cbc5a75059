package vtap

import (
	"context"
	"log/slog"

	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
)

// CompatibilityHooks are the per-branch actions run after the
// device-compatibility check. Nil hooks reduce to logging only.
type CompatibilityHooks struct {
	OnWhitelisted func()
	OnBlacklisted func()
	OnGreylisted  func()
}

// SetupMonitor reacts to the token-module setup-complete broadcast: on a
// success status it runs the device-compatibility check and invokes the
// matching hook.
type SetupMonitor struct {
	client interfaces.TokenClient
	hooks  CompatibilityHooks
	log    *slog.Logger
}

// NewSetupMonitor creates a monitor for the given token client.
func NewSetupMonitor(client interfaces.TokenClient, hooks CompatibilityHooks, log *slog.Logger) *SetupMonitor {
	return &SetupMonitor{client: client, hooks: hooks, log: log}
}

// OnSetupComplete handles the setup-complete broadcast.
func (m *SetupMonitor) OnSetupComplete(ev events.Event) {
	if ev.Kind != events.SetupComplete {
		return
	}
	if ev.SetupStatus != SetupSuccess {
		m.log.Error("Token module setup failed", "status", ev.SetupStatus)
		return
	}
	m.log.Info("Token module setup succeeded")

	code, err := m.client.CheckDeviceCompatibility(context.Background())
	if err != nil {
		m.log.Error("Device compatibility check failed", "err", err)
		return
	}

	switch code {
	case DeviceWhitelisted:
		m.log.Info("Device is whitelisted")
		if m.hooks.OnWhitelisted != nil {
			m.hooks.OnWhitelisted()
		}
	case DeviceBlacklisted:
		m.log.Warn("Device is blacklisted")
		if m.hooks.OnBlacklisted != nil {
			m.hooks.OnBlacklisted()
		}
	case DeviceGreylisted:
		m.log.Warn("Device is greylisted")
		if m.hooks.OnGreylisted != nil {
			m.hooks.OnGreylisted()
		}
	default:
		m.log.Error("Unexpected device compatibility code", "code", code)
	}
}
