package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/survey-wizard/backend/internal/llm"
	"github.com/survey-wizard/backend/internal/models"
)

// DefaultSurveyID tags feedback requests that do not name a survey.
const DefaultSurveyID = "sas-sv-10"

// Generation defaults applied when the caller leaves them unset.
const (
	defaultChatTokens          = 256
	defaultAnswerFeedbackToken = 220
	defaultFinalFeedbackTokens = 380
	defaultTemperature         = 0.2
	defaultTopP                = 0.9
)

// ChatStore abstracts persistence for conversational exchanges. Inserts are
// best-effort from the caller's point of view: a failed insert never hides a
// generated response.
type ChatStore interface {
	InsertChat(c *models.Chat) error
	InsertFeedback(f *models.Feedback) error
	ListChats(code string, sessionNo int, allSessions bool) ([]*models.Chat, error)
	ListFeedback(code string, sessionNo int, allSessions bool) ([]*models.Feedback, error)
}

// Generator is the slice of the llm client the chat service needs.
type Generator interface {
	Generate(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error)
	Chat(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error)
	AnswerFeedback(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error)
	FinalFeedback(ctx context.Context, payload any) (*llm.GenerateResponse, int64, error)
}

// GenerateRequest mirrors the inbound /v1/generate payload.
type GenerateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	TopP         float64 `json:"top_p,omitempty"`
}

// ChatMessage is one turn in a chat transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest mirrors the inbound /v1/chat payload.
type ChatRequest struct {
	Usercode     string        `json:"usercode,omitempty"`
	Messages     []ChatMessage `json:"messages"`
	MaxNewTokens int           `json:"max_new_tokens,omitempty"`
	Temperature  float64       `json:"temperature,omitempty"`
	TopP         float64       `json:"top_p,omitempty"`
}

// AnswerFeedbackRequest asks for feedback on a single survey answer.
type AnswerFeedbackRequest struct {
	Usercode     string  `json:"usercode"`
	SurveyID     string  `json:"survey_id,omitempty"`
	QuestionID   int     `json:"question_id"`
	QuestionText string  `json:"question_text,omitempty"`
	Answer       int     `json:"answer"`
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// FinalFeedbackRequest asks for a summary over the whole answer set.
type FinalFeedbackRequest struct {
	Usercode      string           `json:"usercode"`
	SurveyID      string           `json:"survey_id,omitempty"`
	AllAnswers    []map[string]any `json:"all_answers"`
	SummaryOfUser string           `json:"summary_of_user,omitempty"`
	MaxNewTokens  int              `json:"max_new_tokens,omitempty"`
	Temperature   float64          `json:"temperature,omitempty"`
}

// ExchangeResult is what the ingress handlers return to the end user.
type ExchangeResult struct {
	Output          string `json:"output"`
	Model           string `json:"model"`
	PromptTokens    int    `json:"prompt_tokens"`
	GeneratedTokens int    `json:"generated_tokens"`
	LatencyMS       int64  `json:"latency_ms"`
	SessionNo       int    `json:"session_no"`
}

// ChatService records conversational exchanges against the in-progress
// session (sentinel session 0) and proxies them to the generation backend.
type ChatService struct {
	store ChatStore
	llm   Generator
	now   func() time.Time
}

func NewChatService(store ChatStore, gen Generator) *ChatService {
	return &ChatService{
		store: store,
		llm:   gen,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Generate proxies a raw completion request. Nothing is persisted; only chat
// and feedback exchanges belong to a session.
func (s *ChatService) Generate(ctx context.Context, req GenerateRequest) (*ExchangeResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, NewInvalidError("prompt is required")
	}
	payload := map[string]any{
		"prompt":         req.Prompt,
		"max_new_tokens": orInt(req.MaxNewTokens, defaultChatTokens),
		"temperature":    orFloat(req.Temperature, defaultTemperature),
		"top_p":          orFloat(req.TopP, defaultTopP),
	}
	resp, latency, err := s.llm.Generate(ctx, payload)
	if err != nil {
		return nil, mapUpstreamError(err)
	}
	return exchangeResult(resp, latency), nil
}

// Chat forwards a conversation to the backend and persists the exchange with
// session_no 0. The run the exchange belongs to is not known yet; the
// submission coordinator re-tags the row when the run finalizes.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ExchangeResult, error) {
	if len(req.Messages) == 0 {
		return nil, NewInvalidError("messages are required")
	}
	payload := map[string]any{
		"messages":       req.Messages,
		"max_new_tokens": orInt(req.MaxNewTokens, defaultChatTokens),
		"temperature":    orFloat(req.Temperature, defaultTemperature),
		"top_p":          orFloat(req.TopP, defaultTopP),
	}
	resp, latency, err := s.llm.Chat(ctx, payload)
	if err != nil {
		return nil, mapUpstreamError(err)
	}

	rec := &models.Chat{
		Usercode:    req.Usercode,
		UserMessage: lastUserMessage(req.Messages),
		AIResponse:  resp.Output,
		ModelID:     resp.Model,
		TokensIn:    resp.PromptTokens,
		TokensOut:   resp.GeneratedTokens,
		LatencyMS:   latency,
		SessionNo:   0,
		CreatedTime: s.now(),
	}
	if err := s.store.InsertChat(rec); err != nil {
		// Best-effort persistence: the generated response always wins.
		log.Printf("chat service: persist chat exchange for %q: %v", req.Usercode, err)
	}
	return exchangeResult(resp, latency), nil
}

// AnswerFeedback proxies a per-answer feedback request and records the
// feedback text under the sentinel session.
func (s *ChatService) AnswerFeedback(ctx context.Context, req AnswerFeedbackRequest) (*ExchangeResult, error) {
	if req.Usercode == "" {
		return nil, NewInvalidError("usercode is required")
	}
	if req.QuestionID <= 0 {
		return nil, NewInvalidError("question_id must be positive")
	}
	payload := map[string]any{
		"usercode":       req.Usercode,
		"survey_id":      orString(req.SurveyID, DefaultSurveyID),
		"question_id":    req.QuestionID,
		"question_text":  req.QuestionText,
		"answer":         req.Answer,
		"max_new_tokens": orInt(req.MaxNewTokens, defaultAnswerFeedbackToken),
		"temperature":    orFloat(req.Temperature, defaultTemperature),
	}
	resp, latency, err := s.llm.AnswerFeedback(ctx, payload)
	if err != nil {
		return nil, mapUpstreamError(err)
	}

	qid := req.QuestionID
	rec := &models.Feedback{
		Usercode:     req.Usercode,
		QuestionID:   &qid,
		FeedbackText: resp.Output,
		FeedbackType: models.FeedbackTypeAnswer,
		SessionNo:    0,
		CreatedTime:  s.now(),
	}
	if err := s.store.InsertFeedback(rec); err != nil {
		log.Printf("chat service: persist answer feedback for %q: %v", req.Usercode, err)
	}
	return exchangeResult(resp, latency), nil
}

// FinalFeedback proxies an end-of-survey feedback request.
func (s *ChatService) FinalFeedback(ctx context.Context, req FinalFeedbackRequest) (*ExchangeResult, error) {
	if req.Usercode == "" {
		return nil, NewInvalidError("usercode is required")
	}
	if len(req.AllAnswers) == 0 {
		return nil, NewInvalidError("all_answers is required")
	}
	payload := map[string]any{
		"usercode":        req.Usercode,
		"survey_id":       orString(req.SurveyID, DefaultSurveyID),
		"all_answers":     req.AllAnswers,
		"summary_of_user": req.SummaryOfUser,
		"max_new_tokens":  orInt(req.MaxNewTokens, defaultFinalFeedbackTokens),
		"temperature":     orFloat(req.Temperature, defaultTemperature),
	}
	resp, latency, err := s.llm.FinalFeedback(ctx, payload)
	if err != nil {
		return nil, mapUpstreamError(err)
	}

	rec := &models.Feedback{
		Usercode:     req.Usercode,
		FeedbackText: resp.Output,
		FeedbackType: models.FeedbackTypeFinal,
		SessionNo:    0,
		CreatedTime:  s.now(),
	}
	if err := s.store.InsertFeedback(rec); err != nil {
		log.Printf("chat service: persist final feedback for %q: %v", req.Usercode, err)
	}
	return exchangeResult(resp, latency), nil
}

// ListChats returns a participant's chat history, filtered to one session
// number or spanning all of them.
func (s *ChatService) ListChats(code string, sessionNo int, allSessions bool) ([]*models.Chat, error) {
	if code == "" {
		return nil, NewInvalidError("usercode is required")
	}
	return s.store.ListChats(code, sessionNo, allSessions)
}

// ListFeedback returns a participant's recorded feedback texts with the same
// session filtering as ListChats.
func (s *ChatService) ListFeedback(code string, sessionNo int, allSessions bool) ([]*models.Feedback, error) {
	if code == "" {
		return nil, NewInvalidError("usercode is required")
	}
	return s.store.ListFeedback(code, sessionNo, allSessions)
}

// mapUpstreamError translates client failure classes into the service error
// taxonomy after the retry budget is spent.
func mapUpstreamError(err error) error {
	var te *llm.TimeoutError
	if errors.As(err, &te) {
		return NewGatewayTimeoutError("generation backend timed out")
	}
	var tre *llm.TransportError
	if errors.As(err, &tre) {
		return NewUnavailableError("generation backend unreachable")
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return NewBadGatewayError("generation backend rejected the request")
	}
	return err
}

func exchangeResult(resp *llm.GenerateResponse, latency int64) *ExchangeResult {
	return &ExchangeResult{
		Output:          resp.Output,
		Model:           resp.Model,
		PromptTokens:    resp.PromptTokens,
		GeneratedTokens: resp.GeneratedTokens,
		LatencyMS:       latency,
		SessionNo:       0,
	}
}

func lastUserMessage(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return msgs[len(msgs)-1].Content
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
