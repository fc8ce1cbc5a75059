package vtap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pki"
)

// RenewalHandler reacts to certificate-renewal push messages by revoking the
// affected PKI functions so the next issuance starts clean.
//
// The revocation is asymmetric on purpose: an SMP (secure-messaging) renewal
// also tears down the ASP (auth) function, while an ASP renewal leaves SMP
// alone. The upstream service couples the two roles this way; do not make it
// symmetric without confirming with the PKI owners.
type RenewalHandler struct {
	client interfaces.TokenClient
	log    *slog.Logger
}

// NewRenewalHandler creates a handler revoking through the given client.
func NewRenewalHandler(client interfaces.TokenClient, log *slog.Logger) *RenewalHandler {
	return &RenewalHandler{client: client, log: log}
}

// OnPushMessage handles the push-notification broadcast. Unrecognized
// message types are logged and otherwise ignored.
func (h *RenewalHandler) OnPushMessage(ev events.Event) {
	if ev.Kind != events.PushMessage {
		return
	}
	h.HandleMessage(context.Background(), ev.MessageType, ev.MessageID)
}

// HandleMessage applies the renewal policy for one push message.
func (h *RenewalHandler) HandleMessage(ctx context.Context, messageType, messageID string) {
	switch {
	case strings.EqualFold(messageType, events.MessageTypeASPCertRenew):
		h.log.Info("ASP certificate renewal requested", "messageId", messageID)
		h.revokeIfRegistered(ctx, pki.FuncAuth, pki.FuncAuth)

	case strings.EqualFold(messageType, events.MessageTypeSMPCertRenew):
		h.log.Info("SMP certificate renewal requested, tearing down both roles", "messageId", messageID)
		h.revokeIfRegistered(ctx, pki.FuncSecureMessaging, pki.FuncAuth, pki.FuncSecureMessaging)

	default:
		h.log.Info("Unrecognized push message", "messageType", messageType, "messageId", messageID)
	}
}

// revokeIfRegistered removes the targets when the guard function currently
// holds a certificate.
func (h *RenewalHandler) revokeIfRegistered(ctx context.Context, guard pki.FuncID, targets ...pki.FuncID) {
	registered, err := h.client.IsPKIFunctionRegistered(ctx, guard)
	if err != nil {
		h.log.Error("PKI registration check failed", "function", guard.String(), "err", err)
		return
	}
	if !registered {
		h.log.Debug("PKI function not registered, nothing to revoke", "function", guard.String())
		return
	}

	for _, target := range targets {
		if err := h.client.RemovePKIFunction(ctx, target); err != nil {
			h.log.Error("PKI function removal failed", "function", target.String(), "err", err)
			continue
		}
		h.log.Info("PKI function removed", "function", target.String())
	}
}
