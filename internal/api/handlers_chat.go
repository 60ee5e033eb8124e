package api

import (
	"net/http"

	"github.com/survey-wizard/backend/internal/services"
)

// POST /v1/generate — stateless proxy, no session row.
func (rt *Router) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req services.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.chats.Generate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/chat
func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	var req services.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.chats.Chat(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/survey/answer_feedback
func (rt *Router) handleAnswerFeedback(w http.ResponseWriter, r *http.Request) {
	var req services.AnswerFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.chats.AnswerFeedback(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/survey/final_feedback
func (rt *Router) handleFinalFeedback(w http.ResponseWriter, r *http.Request) {
	var req services.FinalFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.chats.FinalFeedback(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
