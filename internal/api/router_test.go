package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/survey-wizard/backend/internal/db"
	"github.com/survey-wizard/backend/internal/llm"
	"github.com/survey-wizard/backend/internal/models"
	"github.com/survey-wizard/backend/internal/services"
)

type fakeGenerator struct {
	healthy bool
	err     error
}

func (g *fakeGenerator) reply(payload any) (*llm.GenerateResponse, int64, error) {
	if g.err != nil {
		return nil, 0, g.err
	}
	return &llm.GenerateResponse{Output: "ok", Model: "survey-7b", PromptTokens: 3, GeneratedTokens: 5}, 12, nil
}

func (g *fakeGenerator) Generate(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error) {
	return g.reply(payload)
}

func (g *fakeGenerator) Chat(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error) {
	return g.reply(payload)
}

func (g *fakeGenerator) AnswerFeedback(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error) {
	return g.reply(payload)
}

func (g *fakeGenerator) FinalFeedback(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error) {
	return g.reply(payload)
}

func (g *fakeGenerator) Healthz(ctx context.Context) bool { return g.healthy }

func newTestServer(t *testing.T) (*httptest.Server, *fakeGenerator) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.Migrate(store.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	gen := &fakeGenerator{healthy: true}
	surveys := services.NewSurveyService(store)
	chats := services.NewChatService(store, gen)
	questions := services.NewQuestionService(store)
	if _, err := questions.Sync([]*models.Question{
		{ID: 1, Text: "I check my phone first thing in the morning."},
		{ID: 2, Text: "I lose track of time on social media."},
	}); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	mux := http.NewServeMux()
	NewRouter(surveys, chats, questions, gen).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, gen
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func registerUser(t *testing.T, base string) string {
	t.Helper()
	resp, out := postJSON(t, base+"/register_user", map[string]any{
		"age": "25", "gender": "female", "country": "DE",
		"education": "MSc", "field": "CS", "yearsOfStudy": "5",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	code, _ := out["usercode"].(string)
	if len(code) != 8 {
		t.Fatalf("usercode = %q, want 8 chars", code)
	}
	return code
}

func TestRegisterAndValidate(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	_, out := postJSON(t, srv.URL+"/validate_usercode", map[string]any{"usercode": code})
	if out["valid"] != true {
		t.Fatalf("known usercode should validate, got %v", out)
	}
	resp, out := postJSON(t, srv.URL+"/validate_usercode", map[string]any{"usercode": "NOPE0000"})
	if resp.StatusCode != http.StatusOK || out["valid"] != false {
		t.Fatalf("unknown usercode: status %d, body %v", resp.StatusCode, out)
	}
}

func TestGetUserProfile(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	resp, out := getJSON(t, srv.URL+"/users/"+code)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out["usercode"] != code || out["session_count"] != float64(0) {
		t.Fatalf("profile = %v", out)
	}

	resp, _ = getJSON(t, srv.URL+"/users/UNKNOWN1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", resp.StatusCode)
	}
}

func TestQuestionsAndAnswersFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	_, out := getJSON(t, srv.URL+"/questions")
	qs, _ := out["questions"].([]any)
	if len(qs) != 2 {
		t.Fatalf("questions = %v", out)
	}

	resp, out := postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": code,
		"answers":  map[string]int{"1": 4, "2": 2},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, body %v", resp.StatusCode, out)
	}
	if out["session_no"] != float64(1) {
		t.Fatalf("first submission session_no = %v, want 1", out["session_no"])
	}

	resp, out = postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": code,
		"answers":  map[string]int{"1": 5, "2": 1},
	})
	if resp.StatusCode != http.StatusOK || out["session_no"] != float64(2) {
		t.Fatalf("second submission: status %d, body %v", resp.StatusCode, out)
	}

	_, out = getJSON(t, srv.URL+"/question_answers/1")
	answers, _ := out["answers"].([]any)
	if len(answers) != 2 {
		t.Fatalf("question 1 answers = %v", out)
	}
}

func TestSubmitSurveyValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": "", "answers": map[string]int{"1": 3},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty usercode status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": "NOPE0000", "answers": map[string]int{"1": 3},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown usercode status = %d, want 404", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": "NOPE0000", "answers": map[string]int{"zero": 3},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad answer key status = %d, want 400", resp.StatusCode)
	}
}

func TestChatRetagOnSubmission(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	resp, _ := postJSON(t, srv.URL+"/users/"+code+"/session/start", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session start status = %d", resp.StatusCode)
	}

	resp, out := postJSON(t, srv.URL+"/v1/chat", map[string]any{
		"usercode": code,
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d, body %v", resp.StatusCode, out)
	}
	if out["session_no"] != float64(0) {
		t.Fatalf("in-progress chat session_no = %v, want 0", out["session_no"])
	}

	if resp, out = postJSON(t, srv.URL+"/submit_survey", map[string]any{
		"usercode": code, "answers": map[string]int{"1": 4},
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %v", resp.StatusCode, out)
	}

	_, out = getJSON(t, srv.URL+"/users/"+code+"/chats?session=1")
	chats, _ := out["chats"].([]any)
	if len(chats) != 1 {
		t.Fatalf("session 1 chats = %v", out)
	}
	_, out = getJSON(t, srv.URL+"/users/"+code+"/chats?session=0")
	chats, _ = out["chats"].([]any)
	if len(chats) != 0 {
		t.Fatalf("sentinel chats after retag = %v", out)
	}
}

func TestListChatsAllSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	for i := 0; i < 2; i++ {
		postJSON(t, srv.URL+"/v1/chat", map[string]any{
			"usercode": code,
			"messages": []map[string]string{{"role": "user", "content": fmt.Sprintf("msg %d", i)}},
		})
	}
	_, out := getJSON(t, srv.URL+"/users/"+code+"/chats?all_sessions=true")
	chats, _ := out["chats"].([]any)
	if len(chats) != 2 {
		t.Fatalf("all-sessions chats = %v", out)
	}

	resp, _ := getJSON(t, srv.URL+"/users/"+code+"/chats?session=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad session filter status = %d", resp.StatusCode)
	}
}

func TestUpstreamFailureStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", &llm.TimeoutError{Path: "/v1/chat"}, http.StatusGatewayTimeout},
		{"transport", &llm.TransportError{Path: "/v1/chat"}, http.StatusServiceUnavailable},
		{"status", &llm.StatusError{Path: "/v1/chat", StatusCode: 500}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, gen := newTestServer(t)
			gen.err = tc.err
			resp, _ := postJSON(t, srv.URL+"/v1/chat", map[string]any{
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
			})
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	code := registerUser(t, srv.URL)

	resp, out := postJSON(t, srv.URL+"/v1/survey/answer_feedback", map[string]any{
		"usercode": code, "question_id": 1, "answer": 4,
	})
	if resp.StatusCode != http.StatusOK || out["output"] != "ok" {
		t.Fatalf("answer feedback: status %d, body %v", resp.StatusCode, out)
	}

	resp, out = postJSON(t, srv.URL+"/v1/survey/final_feedback", map[string]any{
		"usercode":    code,
		"all_answers": []map[string]any{{"question_id": 1, "answer": 4}},
	})
	if resp.StatusCode != http.StatusOK || out["output"] != "ok" {
		t.Fatalf("final feedback: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = postJSON(t, srv.URL+"/v1/survey/answer_feedback", map[string]any{
		"usercode": code, "question_id": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid question_id status = %d", resp.StatusCode)
	}

	_, out = getJSON(t, srv.URL+"/users/"+code+"/feedback?all_sessions=true")
	fbs, _ := out["feedback"].([]any)
	if len(fbs) != 2 {
		t.Fatalf("feedback history = %v", out)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := postJSON(t, srv.URL+"/v1/generate", map[string]any{"prompt": "say hi"})
	if resp.StatusCode != http.StatusOK || out["output"] != "ok" {
		t.Fatalf("generate: status %d, body %v", resp.StatusCode, out)
	}

	resp, _ = postJSON(t, srv.URL+"/v1/generate", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d", resp.StatusCode)
	}
}

func TestHealthzReportsUpstream(t *testing.T) {
	srv, gen := newTestServer(t)

	_, out := getJSON(t, srv.URL+"/healthz")
	if out["status"] != "ok" || out["llm_upstream"] != true {
		t.Fatalf("healthz = %v", out)
	}
	gen.healthy = false
	_, out = getJSON(t, srv.URL+"/healthz")
	if out["llm_upstream"] != false {
		t.Fatalf("healthz after upstream loss = %v", out)
	}
}

func TestRootAndMethodRouting(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, out := getJSON(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK || out["message"] == "" {
		t.Fatalf("root = %d %v", resp.StatusCode, out)
	}

	resp, err := http.Get(srv.URL + "/register_user")
	if err != nil {
		t.Fatalf("GET register_user: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on POST route status = %d, want 405", resp.StatusCode)
	}
}
