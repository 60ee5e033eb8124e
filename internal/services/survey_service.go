package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/survey-wizard/backend/internal/models"
)

// SurveyStore abstracts the persistence operations required by SurveyService.
// FinalizeSurvey must run its whole body (counter advance, answer inserts,
// retroactive re-tag) inside a single transaction.
type SurveyStore interface {
	CreateParticipant(p *models.Participant) error
	GetParticipantByCode(code string) (*models.Participant, error)
	SetSessionStart(code string, at time.Time) (bool, error)
	FinalizeSurvey(code string, answers map[int]int, at time.Time) (int, error)
	ListAnswersByQuestion(questionID int) ([]*models.Answer, error)
}

// Registration carries the demographic fields collected at sign-up. All
// free-form strings; the survey does not interpret them.
type Registration struct {
	Age          string `json:"age"`
	Gender       string `json:"gender"`
	Country      string `json:"country"`
	Education    string `json:"education"`
	Field        string `json:"field"`
	YearsOfStudy string `json:"yearsOfStudy"`
}

// SurveyService owns the participant lifecycle: registration, the session
// ledger, and survey finalization.
type SurveyService struct {
	store SurveyStore
	now   func() time.Time

	// codeGenerator mints usercodes; swapped out in tests.
	codeGenerator func() string
}

func NewSurveyService(store SurveyStore) *SurveyService {
	return &SurveyService{
		store:         store,
		now:           func() time.Time { return time.Now().UTC() },
		codeGenerator: defaultUsercode,
	}
}

func defaultUsercode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

// Register creates a participant with a fresh usercode and a zeroed session
// ledger.
func (s *SurveyService) Register(reg Registration) (*models.Participant, error) {
	p := &models.Participant{
		Usercode:     s.codeGenerator(),
		Age:          reg.Age,
		Gender:       reg.Gender,
		Country:      reg.Country,
		Education:    reg.Education,
		Field:        reg.Field,
		YearsOfStudy: reg.YearsOfStudy,
		SessionCount: 0,
		CreatedTime:  s.now(),
	}
	if err := s.store.CreateParticipant(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateUsercode reports whether a participant with the code exists. It
// never errors for unknown codes.
func (s *SurveyService) ValidateUsercode(code string) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}
	p, err := s.store.GetParticipantByCode(code)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Participant returns the stored profile, or NotFound.
func (s *SurveyService) Participant(code string) (*models.Participant, error) {
	p, err := s.store.GetParticipantByCode(code)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewNotFoundError("participant not found")
	}
	return p, nil
}

// CurrentSessionNumber returns the number of completed runs for the
// participant, 0 when the participant is unknown. Reads always hit the store;
// caching here would corrupt the retro-tag window.
func (s *SurveyService) CurrentSessionNumber(code string) (int, error) {
	p, err := s.store.GetParticipantByCode(code)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, nil
	}
	return p.SessionCount, nil
}

// StartSession anchors the retro-tag window at now. Calling it again before
// finalization simply moves the anchor forward; only the most recent call
// counts.
func (s *SurveyService) StartSession(code string) (time.Time, error) {
	if strings.TrimSpace(code) == "" {
		return time.Time{}, NewInvalidError("usercode is required")
	}
	at := s.now()
	ok, err := s.store.SetSessionStart(code, at)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, NewNotFoundError("participant not found")
	}
	return at, nil
}

// SubmitSurvey finalizes the in-progress run: validates the payload, advances
// the session counter, stamps every answer with the new session number, and
// re-tags the sentinel chat/feedback rows recorded since the session start.
// The store runs the mutation as one transaction, so a failure leaves the
// counter untouched.
func (s *SurveyService) SubmitSurvey(code string, answers map[int]int) (int, error) {
	if strings.TrimSpace(code) == "" {
		return 0, NewInvalidError("usercode is required")
	}
	if len(answers) == 0 {
		return 0, NewInvalidError("answers must be a non-empty map of question id to value")
	}
	p, err := s.store.GetParticipantByCode(code)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, NewNotFoundError("participant not found")
	}
	return s.store.FinalizeSurvey(code, answers, s.now())
}

// AnswersByQuestion lists every recorded answer for one question.
func (s *SurveyService) AnswersByQuestion(questionID int) ([]*models.Answer, error) {
	if questionID <= 0 {
		return nil, NewInvalidError("question id must be positive")
	}
	return s.store.ListAnswersByQuestion(questionID)
}
