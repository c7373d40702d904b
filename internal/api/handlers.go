// Package api exposes the HTTP surface: setup, health, and note CRUD.
// Response envelopes mirror the service's JSON contract:
// {"success":true,...} on success, {"success":false,"error":...} otherwise.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/notevault/internal/errs"
	"github.com/kuitang/notevault/internal/obs"
	"github.com/kuitang/notevault/internal/session"
)

// Handler wraps the storage session and provides HTTP handlers.
type Handler struct {
	session *session.Session
	apiKey  string
}

// NewHandler creates a new API handler with the given session and API key.
func NewHandler(sess *session.Session, apiKey string) *Handler {
	return &Handler{session: sess, apiKey: apiKey}
}

// RegisterRoutes registers all routes on the given mux. The health probe
// stays open; everything else sits behind the API key.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("POST /setup", h.requireAPIKey(http.HandlerFunc(h.Setup)))
	mux.Handle("POST /notes", h.requireAPIKey(http.HandlerFunc(h.AddNote)))
	mux.Handle("GET /notes", h.requireAPIKey(http.HandlerFunc(h.GetNotes)))
	mux.Handle("DELETE /notes", h.requireAPIKey(http.HandlerFunc(h.DeleteNote)))
}

// SetupRequest is the body for POST /setup.
type SetupRequest struct {
	Bucket string `json:"bucket"`
}

// Setup handles POST /setup - binds the session to a bucket, falling back
// to local storage on remote failure. Degraded outcomes are 200s: the
// service stays usable via the local file.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bucket name not provided")
		return
	}

	result, err := h.session.Setup(r.Context(), req.Bucket)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	resp := map[string]any{"success": true, "bucket": req.Bucket}
	if !result.Online {
		resp["fallback"] = string(result.Code)
	}
	if result.Message != "" {
		resp["message"] = result.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health - liveness probe, always 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ready, message := h.session.HealthCheck()
	writeJSON(w, http.StatusOK, map[string]any{"success": ready, "message": message})
}

// AddNoteRequest is the body for POST /notes.
type AddNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AddNote handles POST /notes - creates a note and returns its id.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Payload not provided")
		return
	}

	id, err := h.session.Add(r.Context(), req.Title, req.Content)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// GetNotes handles GET /notes - returns all notes, or one when the id
// query parameter is present.
func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("id") {
		notes, err := h.session.GetAll(r.Context())
		if err != nil {
			writeSessionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "notes": notes})
		return
	}

	note, err := h.session.Get(r.Context(), query.Get("id"))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notes": note})
}

// DeleteNote handles DELETE /notes - removes the note with the given id.
// Deleting an absent id succeeds.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := h.session.Delete(r.Context(), id); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeSessionError maps a session error to its HTTP status and a safe
// message.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("request failed", "code", string(code), "error", err)
	}
	writeError(w, status, errs.MessageOf(err))
}
