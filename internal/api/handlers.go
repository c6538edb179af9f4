package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
	"github.com/FocuswithJustin/SacredPsalms/core/gesture"
	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
	"github.com/FocuswithJustin/SacredPsalms/internal/server"
	"github.com/FocuswithJustin/SacredPsalms/internal/session"
	"github.com/FocuswithJustin/SacredPsalms/internal/storage"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// maxReferenceLength bounds free-form references such as "Psalm 23:1-6".
const maxReferenceLength = 64

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status           string       `json:"status"`
	Version          string       `json:"version"`
	Uptime           string       `json:"uptime"`
	Storage          storage.Info `json:"storage"`
	WebSocketClients int          `json:"websocket_clients"`
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Translation string `json:"translation"`
}

// ScriptureRequest selects the passage to load. Exactly one field is used:
// Psalm, then Reference, then Random.
type ScriptureRequest struct {
	Psalm     int    `json:"psalm,omitempty"`
	Reference string `json:"reference,omitempty"`
	Random    bool   `json:"random,omitempty"`
}

// HighlightRequest is the body of POST /sessions/{id}/highlights.
type HighlightRequest struct {
	Index *int `json:"index"`
}

// StepRequest is the body of POST /sessions/{id}/step.
type StepRequest struct {
	Direction string `json:"direction"`
}

// BreathRequest is the body of POST /sessions/{id}/breath.
type BreathRequest struct {
	Action string `json:"action"`
}

// GestureRequest is a raw gesture event. Index defaults to -1 when absent.
type GestureRequest struct {
	Type      string  `json:"type"`
	Index     *int    `json:"index"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	PointerID int     `json:"pointer_id"`
}

// Event validates the request and converts it to a gesture event.
func (g GestureRequest) Event() (gesture.Event, error) {
	t, err := gesture.ParseEventType(g.Type)
	if err != nil {
		return gesture.Event{}, errors.NewValidation("type", err.Error())
	}
	index := -1
	if g.Index != nil {
		index = *g.Index
	}
	return gesture.Event{Type: t, Index: index, X: g.X, Y: g.Y, PointerID: g.PointerID}, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"name":    "Lectio Psalms API",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /health",
			"GET /sessions",
			"POST /sessions",
			"GET /sessions/{id}",
			"DELETE /sessions/{id}",
			"POST /sessions/{id}/scripture",
			"GET /sessions/{id}/tokens",
			"GET /sessions/{id}/highlights",
			"POST /sessions/{id}/highlights",
			"DELETE /sessions/{id}/highlights/{index}",
			"GET /sessions/{id}/phrases",
			"POST /sessions/{id}/gestures",
			"POST /sessions/{id}/reset",
			"POST /sessions/{id}/step",
			"POST /sessions/{id}/breath",
			"GET /sessions/{id}/preferences",
			"PUT /sessions/{id}/preferences",
			"PUT /sessions/{id}/journal",
			"GET /sessions/{id}/recap",
			"WS /sessions/{id}/ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:           "healthy",
		Version:          s.cfg.Version,
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		Storage:          storage.GetInfo(),
		WebSocketClients: s.hub.ClientCount(),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	respondList(w, list, len(list))
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondErr(w, r, err)
		return
	}
	v, err := s.sessions.Create(r.Context(), req.Translation)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+v.ID)
	respond(w, http.StatusCreated, v)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	etag := `"` + storage.Checksum(data) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respond(w, http.StatusOK, json.RawMessage(data))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	s.hub.CloseSession(id)
	respond(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) loadScripture(w http.ResponseWriter, r *http.Request) {
	var req ScriptureRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}

	ctx, id := r.Context(), r.PathValue("id")
	var (
		v   session.View
		err error
	)
	switch {
	case req.Psalm != 0:
		v, err = s.sessions.LoadPsalm(ctx, id, req.Psalm)
	case req.Reference != "":
		ref := server.LimitStringLength(server.SanitizeUserInput(req.Reference), maxReferenceLength)
		v, err = s.sessions.LoadReference(ctx, id, ref)
	case req.Random:
		v, err = s.sessions.LoadRandom(ctx, id)
	default:
		err = errors.NewValidation("body", "one of psalm, reference or random is required")
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) getTokens(w http.ResponseWriter, r *http.Request) {
	s.withView(w, r, func(v session.View) (any, int) { return v.Tokens, len(v.Tokens) })
}

func (s *Server) getHighlights(w http.ResponseWriter, r *http.Request) {
	s.withView(w, r, func(v session.View) (any, int) { return v.Highlights, len(v.Highlights) })
}

func (s *Server) getPhrases(w http.ResponseWriter, r *http.Request) {
	s.withView(w, r, func(v session.View) (any, int) { return v.Phrases, len(v.Phrases) })
}

func (s *Server) withView(w http.ResponseWriter, r *http.Request, pick func(session.View) (any, int)) {
	v, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	data, total := pick(v)
	respondList(w, data, total)
}

func (s *Server) addHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}
	if req.Index == nil {
		respondErr(w, r, errors.NewValidation("index", "index is required"))
		return
	}
	v, err := s.sessions.ToggleHighlight(r.Context(), r.PathValue("id"), *req.Index)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) removeHighlight(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondErr(w, r, errors.NewValidation("index", fmt.Sprintf("invalid index %q", r.PathValue("index"))))
		return
	}
	v, err := s.sessions.RemoveHighlight(r.Context(), r.PathValue("id"), index)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) postGesture(w http.ResponseWriter, r *http.Request) {
	var req GestureRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}
	ev, err := req.Event()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	res, err := s.sessions.HandleGesture(r.Context(), r.PathValue("id"), ev)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) advanceStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}
	v, err := s.sessions.Advance(r.Context(), r.PathValue("id"), req.Direction)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) breath(w http.ResponseWriter, r *http.Request) {
	var req BreathRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondErr(w, r, err)
		return
	}
	v, err := s.sessions.Breath(r.Context(), r.PathValue("id"), req.Action)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.sessions.Preferences(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var req session.PreferencesUpdate
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}
	p, err := s.sessions.UpdatePreferences(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (s *Server) putJournal(w http.ResponseWriter, r *http.Request) {
	var req session.JournalUpdate
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondErr(w, r, err)
		return
	}
	for _, entry := range []*string{req.Reflection, req.Prayer} {
		if entry != nil {
			*entry = server.SanitizeUserInput(*entry)
		}
	}
	v, err := s.sessions.UpdateJournal(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, v)
}

func (s *Server) getRecap(w http.ResponseWriter, r *http.Request) {
	recap, err := s.sessions.Recap(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, recap)
}

// decodeJSON reads a bounded JSON body into dst. An empty body is accepted
// only when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !server.ValidateContentType(ct, []string{"application/json"}) {
		return errors.NewValidation("content-type", fmt.Sprintf("unsupported content type %q", ct))
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case err == io.EOF && optional:
		return nil
	case err == io.EOF:
		return errors.NewValidation("body", "request body is required")
	default:
		return &errors.ValidationError{Field: "body", Message: "invalid JSON", Err: err}
	}
}

// statusFor maps an error to its HTTP status and stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, errors.ErrBusy):
		return http.StatusConflict, "BUSY"
	case errors.Is(err, errors.ErrUnavailable):
		return http.StatusBadGateway, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "Internal server error"
	}
	respondError(w, status, code, msg)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
