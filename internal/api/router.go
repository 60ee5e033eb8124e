package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/survey-wizard/backend/internal/services"
)

// HealthChecker reports whether the generation backend answers its health
// probe. Satisfied by *llm.Client.
type HealthChecker interface {
	Healthz(ctx context.Context) bool
}

// Router wires the HTTP surface to the service layer.
type Router struct {
	surveys   *services.SurveyService
	chats     *services.ChatService
	questions *services.QuestionService
	upstream  HealthChecker
}

func NewRouter(surveys *services.SurveyService, chats *services.ChatService, questions *services.QuestionService, upstream HealthChecker) *Router {
	return &Router{surveys: surveys, chats: chats, questions: questions, upstream: upstream}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", rt.handleRoot)
	mux.HandleFunc("GET /healthz", rt.handleHealthz)

	mux.HandleFunc("POST /register_user", rt.handleRegisterUser)
	mux.HandleFunc("POST /validate_usercode", rt.handleValidateUsercode)
	mux.HandleFunc("GET /users/{usercode}", rt.handleGetUser)
	mux.HandleFunc("POST /users/{usercode}/session/start", rt.handleStartSession)
	mux.HandleFunc("GET /users/{usercode}/chats", rt.handleListChats)
	mux.HandleFunc("GET /users/{usercode}/feedback", rt.handleListFeedback)

	mux.HandleFunc("GET /questions", rt.handleListQuestions)
	mux.HandleFunc("GET /question_answers/{question_id}", rt.handleQuestionAnswers)
	mux.HandleFunc("POST /submit_survey", rt.handleSubmitSurvey)

	mux.HandleFunc("POST /v1/generate", rt.handleGenerate)
	mux.HandleFunc("POST /v1/chat", rt.handleChat)
	mux.HandleFunc("POST /v1/survey/answer_feedback", rt.handleAnswerFeedback)
	mux.HandleFunc("POST /v1/survey/final_feedback", rt.handleFinalFeedback)
}

// GET /
func (rt *Router) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Survey backend is running"})
}

// GET /healthz — local liveness plus the upstream health flag.
func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"llm_upstream": rt.upstream.Healthz(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP status codes.
// Anything outside the taxonomy is an internal error whose detail stays out
// of the response body.
func writeServiceError(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	status := http.StatusInternalServerError
	switch se.Code {
	case services.ErrorInvalid:
		status = http.StatusBadRequest
	case services.ErrorNotFound:
		status = http.StatusNotFound
	case services.ErrorConflict:
		status = http.StatusConflict
	case services.ErrorBadGateway:
		status = http.StatusBadGateway
	case services.ErrorGatewayTimeout:
		status = http.StatusGatewayTimeout
	case services.ErrorUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": se.Message, "code": se.Code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return false
	}
	return true
}
