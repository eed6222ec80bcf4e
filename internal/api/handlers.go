package api

import (
	"encoding/json"
	"errors"
	"net/http"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/session"
	"github.com/sellerdesk/walink/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_error("api: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeTenantRequest parses a JSON body carrying at least a tenant id and
// validates it. Returns false after writing the error response.
func decodeTenantRequest(w http.ResponseWriter, r *http.Request, v interface{}, tenantID *string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if !store.ValidTenantID(*tenantID) {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return false
	}
	return true
}

type pairRequest struct {
	TenantID string `json:"tenant_id"`
}

type pairResponse struct {
	Code string `json:"code"`
}

// handlePair requests a pairing code for a tenant. Idempotent: an in-flight
// code is returned as-is, a connected tenant gets an "already connected"
// error.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decodeTenantRequest(w, r, &req, &req.TenantID) {
		return
	}

	code, err := s.sessions.RequestPairing(r.Context(), req.TenantID)
	switch {
	case errors.Is(err, session.ErrAlreadyConnected):
		writeError(w, http.StatusConflict, "already connected")
	case errors.Is(err, session.ErrPairingTimeout):
		writeError(w, http.StatusGatewayTimeout, "pairing timed out")
	case err != nil:
		L_error("api: pairing failed", "tenant", req.TenantID, "error", err)
		writeError(w, http.StatusBadGateway, "pairing failed")
	default:
		writeJSON(w, http.StatusOK, pairResponse{Code: code})
	}
}

type statusResponse struct {
	Status   string `json:"status"`
	Identity string `json:"identity,omitempty"`
}

// handleStatus reads a tenant's status. Never fails for an unknown tenant;
// that is simply disconnected.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if !store.ValidTenantID(tenantID) {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	rec := s.sessions.Status(tenantID)
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   string(rec.Status),
		Identity: rec.Identity,
	})
}

type disconnectRequest struct {
	TenantID string `json:"tenant_id"`
}

type disconnectResponse struct {
	OK bool `json:"ok"`
}

// handleDisconnect tears the tenant's session down and deletes stored
// credentials. Idempotent.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if !decodeTenantRequest(w, r, &req, &req.TenantID) {
		return
	}

	if err := s.sessions.Disconnect(r.Context(), req.TenantID); err != nil {
		L_error("api: disconnect failed", "tenant", req.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{OK: true})
}

type sendRequest struct {
	TenantID string `json:"tenant_id"`
	To       string `json:"to"`
	Text     string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// handleSend delivers an administrative/manual message through the tenant's
// connected session.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeTenantRequest(w, r, &req, &req.TenantID) {
		return
	}
	if req.To == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "to and text are required")
		return
	}

	id, err := s.sessions.Send(r.Context(), req.TenantID, req.To, req.Text)
	switch {
	case errors.Is(err, session.ErrNotConnected):
		writeError(w, http.StatusConflict, "not connected")
	case err != nil:
		L_error("api: send failed", "tenant", req.TenantID, "error", err)
		writeError(w, http.StatusBadGateway, "send failed")
	default:
		writeJSON(w, http.StatusOK, sendResponse{MessageID: id})
	}
}
