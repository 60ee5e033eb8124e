package models

import "time"

// Participant is a registered survey respondent, identified by an opaque
// usercode. SessionCount is the number of completed survey runs; 0 means the
// participant has never finalized a run. SessionStartTime anchors the
// in-progress run and is nil until the participant starts one.
type Participant struct {
	ID               int64      `db:"id" json:"id"`
	Usercode         string     `db:"usercode" json:"usercode"`
	Age              string     `db:"age" json:"age"`
	Gender           string     `db:"gender" json:"gender"`
	Country          string     `db:"country" json:"country"`
	Education        string     `db:"education" json:"education"`
	Field            string     `db:"field" json:"field"`
	YearsOfStudy     string     `db:"years_of_study" json:"yearsOfStudy"`
	SessionCount     int        `db:"session_count" json:"session_count"`
	SessionStartTime *time.Time `db:"session_start_time" json:"session_start_time,omitempty"`
	CreatedTime      time.Time  `db:"created_time" json:"created_time"`
}

// Question is a questionnaire item, sourced from the question config document.
type Question struct {
	ID   int    `db:"id" json:"id"`
	Text string `db:"text" json:"text"`
}

// Answer records one integer response to one question. SessionNo 0 marks a
// row belonging to the in-progress run; a positive SessionNo is the completed
// run ordinal and is immutable once assigned.
type Answer struct {
	ID          int64     `db:"id" json:"id"`
	Usercode    string    `db:"usercode" json:"usercode"`
	QuestionID  int       `db:"question_id" json:"question_id"`
	Answer      int       `db:"answer" json:"answer"`
	SessionNo   int       `db:"session_no" json:"session_no"`
	CreatedTime time.Time `db:"created_time" json:"created_time"`
}

// Chat records one conversational exchange with the generation backend.
// Rows are written with SessionNo 0 and re-tagged when the run finalizes.
type Chat struct {
	ID          int64     `db:"id" json:"id"`
	Usercode    string    `db:"usercode" json:"usercode"`
	UserMessage string    `db:"user_message" json:"user_message"`
	AIResponse  string    `db:"ai_response" json:"ai_response"`
	ModelID     string    `db:"model_id" json:"model_id"`
	TokensIn    int       `db:"tokens_in" json:"tokens_in"`
	TokensOut   int       `db:"tokens_out" json:"tokens_out"`
	LatencyMS   int64     `db:"latency_ms" json:"latency_ms"`
	SessionNo   int       `db:"session_no" json:"session_no"`
	CreatedTime time.Time `db:"created_time" json:"created_time"`
}

// Feedback types distinguish per-answer feedback from end-of-survey feedback.
const (
	FeedbackTypeAnswer = "answer"
	FeedbackTypeFinal  = "final"
)

// Feedback records LLM-generated feedback text, following the same sentinel
// session convention as Chat.
type Feedback struct {
	ID           int64     `db:"id" json:"id"`
	Usercode     string    `db:"usercode" json:"usercode"`
	QuestionID   *int      `db:"question_id" json:"question_id,omitempty"`
	FeedbackText string    `db:"feedback_text" json:"feedback_text"`
	FeedbackType string    `db:"feedback_type" json:"feedback_type"`
	SessionNo    int       `db:"session_no" json:"session_no"`
	CreatedTime  time.Time `db:"created_time" json:"created_time"`
}
