package services

import (
	"github.com/survey-wizard/backend/internal/models"
)

// QuestionStore abstracts question persistence. The sync is one-way: config
// is the source of truth for text, but rows are never deleted here.
type QuestionStore interface {
	GetQuestion(id int) (*models.Question, error)
	InsertQuestion(q *models.Question) error
	UpdateQuestionText(id int, text string) error
	ListQuestions() ([]*models.Question, error)
}

// SyncResult summarizes one sync pass over the question config document.
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type QuestionService struct {
	store QuestionStore
}

func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{store: store}
}

// Sync upserts the given questions by id: new ids are inserted, changed text
// is updated, identical rows are skipped. Questions absent from the input are
// left untouched.
func (s *QuestionService) Sync(qs []*models.Question) (*SyncResult, error) {
	res := &SyncResult{}
	for _, q := range qs {
		if q.ID <= 0 || q.Text == "" {
			return nil, NewInvalidError("questions need a positive id and non-empty text")
		}
		existing, err := s.store.GetQuestion(q.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case existing == nil:
			if err := s.store.InsertQuestion(q); err != nil {
				return nil, err
			}
			res.Added++
		case existing.Text != q.Text:
			if err := s.store.UpdateQuestionText(q.ID, q.Text); err != nil {
				return nil, err
			}
			res.Updated++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// List returns every stored question.
func (s *QuestionService) List() ([]*models.Question, error) {
	return s.store.ListQuestions()
}
