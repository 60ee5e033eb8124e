package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/survey-wizard/backend/internal/services"
)

// POST /register_user
func (rt *Router) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var reg services.Registration
	if !decodeJSON(w, r, &reg) {
		return
	}
	p, err := rt.surveys.Register(reg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"usercode": p.Usercode})
}

// POST /validate_usercode
func (rt *Router) handleValidateUsercode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usercode string `json:"usercode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	valid, err := rt.surveys.ValidateUsercode(req.Usercode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

// GET /users/{usercode}
func (rt *Router) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := rt.surveys.Participant(r.PathValue("usercode"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /users/{usercode}/session/start
func (rt *Router) handleStartSession(w http.ResponseWriter, r *http.Request) {
	at, err := rt.surveys.StartSession(r.PathValue("usercode"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_start_time": at.Format(time.RFC3339)})
}

// sessionFilter parses the ?session=N | ?all_sessions=true query pair shared
// by the history endpoints. Reports ok=false after writing the error response.
func sessionFilter(w http.ResponseWriter, r *http.Request) (sessionNo int, allSessions, ok bool) {
	allSessions = r.URL.Query().Get("all_sessions") == "true"
	if raw := r.URL.Query().Get("session"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "session must be a non-negative integer"})
			return 0, false, false
		}
		sessionNo = n
	}
	return sessionNo, allSessions, true
}

// GET /users/{usercode}/chats?session=N | ?all_sessions=true
func (rt *Router) handleListChats(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("usercode")
	sessionNo, allSessions, ok := sessionFilter(w, r)
	if !ok {
		return
	}
	chats, err := rt.chats.ListChats(code, sessionNo, allSessions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usercode": code, "chats": chats})
}

// GET /users/{usercode}/feedback?session=N | ?all_sessions=true
func (rt *Router) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("usercode")
	sessionNo, allSessions, ok := sessionFilter(w, r)
	if !ok {
		return
	}
	feedback, err := rt.chats.ListFeedback(code, sessionNo, allSessions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usercode": code, "feedback": feedback})
}
