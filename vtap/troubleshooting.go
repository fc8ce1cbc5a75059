package vtap

import (
	"context"
	"log/slog"

	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/status"
)

// ReportTroubleshootingLogs uploads device diagnostics to the dashboard and
// logs the outcome per the documented codes. The returned code lets callers
// surface the result; failures here never block provisioning.
func ReportTroubleshootingLogs(ctx context.Context, client interfaces.TokenClient, log *slog.Logger) (int, error) {
	code, err := client.SendTroubleshootingLogs(ctx)
	if err != nil {
		log.Error("Send troubleshooting logs failed", "err", err)
		return 0, err
	}

	switch code {
	case status.TroubleshootingLogsSuccess:
		log.Info("Troubleshooting logs sent")
	case status.TroubleshootingLogsFailed:
		log.Warn("Troubleshooting logs rejected", "code", code)
	case status.ConnectionFailed:
		log.Warn("Troubleshooting logs upload could not connect", "code", code)
	default:
		log.Info("Unexpected troubleshooting-logs status", "code", code)
	}
	return code, nil
}
