package vtap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sistema-id/smarttoken-provisioning/events"
)

func TestSetupMonitorRunsCompatibilityCheck(t *testing.T) {
	tests := []struct {
		name string
		code int
		want string
	}{
		{"whitelisted", DeviceWhitelisted, "white"},
		{"blacklisted", DeviceBlacklisted, "black"},
		{"greylisted", DeviceGreylisted, "grey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockClient{}
			client.On("CheckDeviceCompatibility", mock.Anything).Return(tt.code, nil)

			var branch string
			m := NewSetupMonitor(client, CompatibilityHooks{
				OnWhitelisted: func() { branch = "white" },
				OnBlacklisted: func() { branch = "black" },
				OnGreylisted:  func() { branch = "grey" },
			}, slog.New(slog.NewTextHandler(io.Discard, nil)))

			m.OnSetupComplete(events.Event{Kind: events.SetupComplete, SetupStatus: SetupSuccess})
			assert.Equal(t, tt.want, branch)
		})
	}
}

func TestSetupMonitorFailedSetupSkipsCheck(t *testing.T) {
	client := &MockClient{}
	m := NewSetupMonitor(client, CompatibilityHooks{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.OnSetupComplete(events.Event{Kind: events.SetupComplete, SetupStatus: 0})

	client.AssertNotCalled(t, "CheckDeviceCompatibility", mock.Anything)
}
