// Package db is the sqlite persistence layer. It is the single shared
// mutable resource in the system; every write goes through one transactional
// session scoped to a request.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/survey-wizard/backend/internal/models"
	"github.com/survey-wizard/backend/internal/services"
)

type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path with WAL journaling, foreign
// keys, and a busy timeout so concurrent finalizations queue instead of
// failing.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path)
	dbx, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbx.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: dbx}, nil
}

// DB exposes the underlying handle for migrations and shutdown.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// ---- participants / session ledger ----

func (s *Store) CreateParticipant(p *models.Participant) error {
	res, err := s.db.Exec(`INSERT INTO participants
		(usercode, age, gender, country, education, field, years_of_study, session_count, created_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Usercode, p.Age, p.Gender, p.Country, p.Education, p.Field, p.YearsOfStudy, p.SessionCount, p.CreatedTime)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// GetParticipantByCode returns (nil, nil) for unknown codes.
func (s *Store) GetParticipantByCode(code string) (*models.Participant, error) {
	var p models.Participant
	err := s.db.Get(&p, `SELECT * FROM participants WHERE usercode = ?`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

// SetSessionStart moves the retro-tag anchor to at. Returns false when the
// participant does not exist.
func (s *Store) SetSessionStart(code string, at time.Time) (bool, error) {
	res, err := s.db.Exec(`UPDATE participants SET session_start_time = ? WHERE usercode = ?`, at, code)
	if err != nil {
		return false, fmt.Errorf("set session start: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AdvanceSession increments the completed-run counter in a single statement
// and returns the new value. The lone UPDATE rules out read-then-write lost
// updates under concurrent finalization.
func (s *Store) AdvanceSession(code string) (int, error) {
	return advanceSession(s.db, code)
}

type execQueryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func advanceSession(q execQueryer, code string) (int, error) {
	var n int
	err := q.QueryRow(`UPDATE participants SET session_count = session_count + 1
		WHERE usercode = ? RETURNING session_count`, code).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.NewNotFoundError("participant not found")
	}
	if err != nil {
		return 0, fmt.Errorf("advance session: %w", err)
	}
	return n, nil
}

// FinalizeSurvey runs the whole submission in one transaction: advance the
// counter to N, insert each answer stamped with N, and re-tag every sentinel
// chat/feedback row created at or after the session anchor. No anchor means
// no re-tagging.
func (s *Store) FinalizeSurvey(code string, answers map[int]int, at time.Time) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		sessionNo int
		startedAt sql.NullTime
	)
	err = tx.QueryRow(`UPDATE participants SET session_count = session_count + 1
		WHERE usercode = ? RETURNING session_count, session_start_time`, code).
		Scan(&sessionNo, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.NewNotFoundError("participant not found")
	}
	if err != nil {
		return 0, fmt.Errorf("advance session: %w", err)
	}

	for questionID, value := range answers {
		if _, err := tx.Exec(`INSERT INTO answers (usercode, question_id, answer, session_no, created_time)
			VALUES (?, ?, ?, ?, ?)`, code, questionID, value, sessionNo, at); err != nil {
			return 0, fmt.Errorf("insert answer for question %d: %w", questionID, err)
		}
	}

	if startedAt.Valid {
		// Set-based re-tag: everything the participant did under the sentinel
		// session since the anchor belongs to run N.
		if _, err := tx.Exec(`UPDATE chats SET session_no = ?
			WHERE usercode = ? AND session_no = 0 AND created_time >= ?`,
			sessionNo, code, startedAt.Time); err != nil {
			return 0, fmt.Errorf("retag chats: %w", err)
		}
		if _, err := tx.Exec(`UPDATE feedback SET session_no = ?
			WHERE usercode = ? AND session_no = 0 AND created_time >= ?`,
			sessionNo, code, startedAt.Time); err != nil {
			return 0, fmt.Errorf("retag feedback: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit finalize: %w", err)
	}
	return sessionNo, nil
}

// ---- answers ----

func (s *Store) ListAnswersByQuestion(questionID int) ([]*models.Answer, error) {
	out := []*models.Answer{}
	err := s.db.Select(&out, `SELECT * FROM answers WHERE question_id = ? ORDER BY created_time, id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return out, nil
}

// ---- chats / feedback ----

func (s *Store) InsertChat(c *models.Chat) error {
	res, err := s.db.Exec(`INSERT INTO chats
		(usercode, user_message, ai_response, model_id, tokens_in, tokens_out, latency_ms, session_no, created_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Usercode, c.UserMessage, c.AIResponse, c.ModelID, c.TokensIn, c.TokensOut, c.LatencyMS, c.SessionNo, c.CreatedTime)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) InsertFeedback(f *models.Feedback) error {
	res, err := s.db.Exec(`INSERT INTO feedback
		(usercode, question_id, feedback_text, feedback_type, session_no, created_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.Usercode, f.QuestionID, f.FeedbackText, f.FeedbackType, f.SessionNo, f.CreatedTime)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	f.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) ListChats(code string, sessionNo int, allSessions bool) ([]*models.Chat, error) {
	out := []*models.Chat{}
	var err error
	if allSessions {
		err = s.db.Select(&out, `SELECT * FROM chats WHERE usercode = ? ORDER BY created_time, id`, code)
	} else {
		err = s.db.Select(&out, `SELECT * FROM chats WHERE usercode = ? AND session_no = ? ORDER BY created_time, id`, code, sessionNo)
	}
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return out, nil
}

func (s *Store) ListFeedback(code string, sessionNo int, allSessions bool) ([]*models.Feedback, error) {
	out := []*models.Feedback{}
	var err error
	if allSessions {
		err = s.db.Select(&out, `SELECT * FROM feedback WHERE usercode = ? ORDER BY created_time, id`, code)
	} else {
		err = s.db.Select(&out, `SELECT * FROM feedback WHERE usercode = ? AND session_no = ? ORDER BY created_time, id`, code, sessionNo)
	}
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return out, nil
}

// ---- questions ----

func (s *Store) GetQuestion(id int) (*models.Question, error) {
	var q models.Question
	err := s.db.Get(&q, `SELECT * FROM questions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &q, nil
}

func (s *Store) InsertQuestion(q *models.Question) error {
	if _, err := s.db.Exec(`INSERT INTO questions (id, text) VALUES (?, ?)`, q.ID, q.Text); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuestionText(id int, text string) error {
	if _, err := s.db.Exec(`UPDATE questions SET text = ? WHERE id = ?`, text, id); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

func (s *Store) ListQuestions() ([]*models.Question, error) {
	out := []*models.Question{}
	if err := s.db.Select(&out, `SELECT * FROM questions ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}
