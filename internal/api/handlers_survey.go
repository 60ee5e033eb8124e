package api

import (
	"net/http"
	"strconv"
)

// GET /questions
func (rt *Router) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := rt.questions.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// GET /question_answers/{question_id}
func (rt *Router) handleQuestionAnswers(w http.ResponseWriter, r *http.Request) {
	qid, err := strconv.Atoi(r.PathValue("question_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "question_id must be an integer"})
		return
	}
	answers, err := rt.surveys.AnswersByQuestion(qid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question_id": qid, "answers": answers})
}

// POST /submit_survey
// { usercode: string, answers: {"1": 4, "2": 2, ...} }
func (rt *Router) handleSubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usercode string         `json:"usercode"`
		Answers  map[string]int `json:"answers"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answers := make(map[int]int, len(req.Answers))
	for k, v := range req.Answers {
		qid, err := strconv.Atoi(k)
		if err != nil || qid <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "answer keys must be positive question ids"})
			return
		}
		answers[qid] = v
	}
	sessionNo, err := rt.surveys.SubmitSurvey(req.Usercode, answers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session_no": sessionNo})
}
