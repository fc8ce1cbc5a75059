package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sistema-id/smarttoken-provisioning/config"
	"github.com/sistema-id/smarttoken-provisioning/engine"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/pipeline"
	"github.com/sistema-id/smarttoken-provisioning/status"
	"github.com/sistema-id/smarttoken-provisioning/tms"
	"github.com/sistema-id/smarttoken-provisioning/vtap"
)

// Handler exposes the provisioning pipeline over HTTP, one route per user
// action. Every stage route is a POST that performs exactly one remote call;
// callers poll /api/v1/provision/status between stages.
type Handler struct {
	pipeline *pipeline.Pipeline
	token    interfaces.TokenClient
	engine   *engine.Bootstrap
	identity config.Identity
	log      *slog.Logger
}

func NewHandler(p *pipeline.Pipeline, token interfaces.TokenClient, eng *engine.Bootstrap, identity config.Identity, log *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		token:    token,
		engine:   eng,
		identity: identity,
		log:      log,
	}
}

// EngineReady reports whether the secure engine finished booting. The server
// readiness probe gates on it.
func (h *Handler) EngineReady() bool {
	_, ok := h.engine.Handle()
	return ok
}

type outcomeResponse struct {
	Code   int    `json:"code"`
	Class  string `json:"class"`
	Status string `json:"status"`
}

func toOutcomeResponse(out status.Outcome) outcomeResponse {
	return outcomeResponse{Code: out.Code, Class: out.Class.String(), Status: out.String()}
}

type createUserRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NRIC      string `json:"nric"`
	Country   string `json:"country"`
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	req := interfaces.UserRequest{
		UserID:      h.identity.UserID,
		CreatedUser: h.identity.CreatedUser,
		CustomerID:  h.identity.CustomerID,
		NRIC:        h.identity.NRIC,
		FirstName:   h.identity.FirstName,
		LastName:    h.identity.LastName,
		Country:     h.identity.Country,
	}
	if body.UserID != "" {
		req.UserID = body.UserID
	}
	if body.FirstName != "" {
		req.FirstName = body.FirstName
	}
	if body.LastName != "" {
		req.LastName = body.LastName
	}
	if body.NRIC != "" {
		req.NRIC = body.NRIC
	}
	if body.Country != "" {
		req.Country = body.Country
	}
	if handle, ok := h.engine.Handle(); ok {
		req.DeviceID = handle.TroubleshootingID
	}

	id, err := h.pipeline.CreateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"id": id})
}

func (h *Handler) HandleAssignToken(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.pipeline.AssignToken(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, assignment)
}

func (h *Handler) HandleFirmwareAck(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.AcknowledgeFirmware(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toOutcomeResponse(out))
}

func (h *Handler) HandleFirmwareLoad(w http.ResponseWriter, r *http.Request) {
	out, err := h.pipeline.LoadFirmware(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toOutcomeResponse(out))
}

type pinRequest struct {
	PIN string `json:"pin"`
}

func (h *Handler) HandlePinRegister(w http.ResponseWriter, r *http.Request) {
	var body pinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PIN == "" {
		http.Error(w, "pin required", http.StatusBadRequest)
		return
	}

	out, err := h.pipeline.RegisterPIN(r.Context(), body.PIN)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toOutcomeResponse(out))
}

func (h *Handler) HandlePinVerify(w http.ResponseWriter, r *http.Request) {
	var body pinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PIN == "" {
		http.Error(w, "pin required", http.StatusBadRequest)
		return
	}

	out, err := h.pipeline.VerifyPIN(r.Context(), body.PIN)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toOutcomeResponse(out))
}

type pushRequest struct {
	PushToken string `json:"pushToken"`
}

func (h *Handler) HandlePushRegister(w http.ResponseWriter, r *http.Request) {
	var body pushRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	out, err := h.pipeline.RegisterPush(r.Context(), body.PushToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, toOutcomeResponse(out))
}

func (h *Handler) HandleCertificates(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.pipeline.IssueCertificates(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make(map[string]outcomeResponse, len(outcomes))
	for role, out := range outcomes {
		resp[role.String()] = toOutcomeResponse(out)
	}
	h.writeJSON(w, resp)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		Session *pipeline.Session `json:"session"`
		Loading bool              `json:"loading"`
	}

	resp := statusResponse{Loading: h.pipeline.Loading()}
	if s, ok := h.pipeline.Snapshot(); ok {
		resp.Session = &s
	}
	h.writeJSON(w, resp)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTroubleshootingLogs(w http.ResponseWriter, r *http.Request) {
	code, err := vtap.ReportTroubleshootingLogs(r.Context(), h.token, h.log)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]int{"code": code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		orderErr *pipeline.StageOrderError
		netErr   *tms.NetworkError
	)

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrEngineNotReady):
		code = http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrCallInFlight):
		code = http.StatusConflict
	case errors.Is(err, pipeline.ErrNoSession):
		code = http.StatusNotFound
	case errors.As(err, &orderErr):
		code = http.StatusConflict
	case errors.As(err, &netErr):
		code = http.StatusBadGateway
	}

	h.log.Warn("Request failed", "err", err, "status", code)
	http.Error(w, err.Error(), code)
}
