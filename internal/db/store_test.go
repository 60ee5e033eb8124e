package db

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/survey-wizard/backend/internal/models"
	"github.com/survey-wizard/backend/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "survey_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := Migrate(s.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func addParticipant(t *testing.T, s *Store, code string) {
	t.Helper()
	p := &models.Participant{Usercode: code, CreatedTime: time.Now().UTC()}
	if err := s.CreateParticipant(p); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected participant id to be set")
	}
}

func TestGetParticipantUnknownIsNil(t *testing.T) {
	s := newTestStore(t)
	p, err := s.GetParticipantByCode("NOPE1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil participant, got %+v", p)
	}
}

func TestAdvanceSessionIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")
	for want := 1; want <= 3; want++ {
		got, err := s.AdvanceSession("ABCD1234")
		if err != nil {
			t.Fatalf("advance %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("session = %d, want %d", got, want)
		}
	}
}

func TestAdvanceSessionUnknownParticipant(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AdvanceSession("MISSING1")
	se, ok := services.AsServiceError(err)
	if !ok || se.Code != services.ErrorNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestFinalizeSurveyMonotonicSessionNumbers(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")
	answers := map[int]int{1: 4, 2: 5}
	for want := 1; want <= 3; want++ {
		got, err := s.FinalizeSurvey("ABCD1234", answers, time.Now().UTC())
		if err != nil {
			t.Fatalf("finalize %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("session = %d, want %d", got, want)
		}
	}
	rows, err := s.ListAnswersByQuestion(1)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("answer rows = %d, want 3", len(rows))
	}
	seen := map[int]bool{}
	for _, a := range rows {
		if a.SessionNo < 1 || a.SessionNo > 3 || seen[a.SessionNo] {
			t.Fatalf("unexpected session tags: %+v", rows)
		}
		seen[a.SessionNo] = true
	}
}

func TestFinalizeSurveyConcurrentSameParticipant(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")

	const n = 4
	results := make(chan int, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.FinalizeSurvey("ABCD1234", map[int]int{1: 3}, time.Now().UTC())
			if err != nil {
				errs <- err
				return
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent finalize failed: %v", err)
	}
	seen := map[int]bool{}
	for got := range results {
		if seen[got] {
			t.Fatalf("session number %d assigned twice", got)
		}
		seen[got] = true
	}
	for want := 1; want <= n; want++ {
		if !seen[want] {
			t.Fatalf("session number %d was skipped", want)
		}
	}
}

func TestFinalizeSurveyRetagWindow(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")

	anchor := time.Now().UTC()
	before := anchor.Add(-time.Second)
	after := anchor.Add(time.Second)

	for _, at := range []time.Time{before, after} {
		if err := s.InsertChat(&models.Chat{Usercode: "ABCD1234", UserMessage: "hi", SessionNo: 0, CreatedTime: at}); err != nil {
			t.Fatalf("insert chat: %v", err)
		}
	}
	if err := s.InsertFeedback(&models.Feedback{Usercode: "ABCD1234", FeedbackText: "fb", FeedbackType: models.FeedbackTypeAnswer, SessionNo: 0, CreatedTime: after}); err != nil {
		t.Fatalf("insert feedback: %v", err)
	}

	if ok, err := s.SetSessionStart("ABCD1234", anchor); err != nil || !ok {
		t.Fatalf("set session start: ok=%v err=%v", ok, err)
	}

	n, err := s.FinalizeSurvey("ABCD1234", map[int]int{1: 2}, after.Add(time.Second))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("session = %d, want 1", n)
	}

	chats, err := s.ListChats("ABCD1234", 0, true)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("chat rows = %d, want 2", len(chats))
	}
	// The pre-anchor row stays sentinel; the post-anchor row moves to run 1.
	if chats[0].SessionNo != 0 {
		t.Fatalf("pre-anchor chat session = %d, want 0", chats[0].SessionNo)
	}
	if chats[1].SessionNo != 1 {
		t.Fatalf("post-anchor chat session = %d, want 1", chats[1].SessionNo)
	}

	fbs, err := s.ListFeedback("ABCD1234", 1, false)
	if err != nil {
		t.Fatalf("list feedback: %v", err)
	}
	if len(fbs) != 1 {
		t.Fatalf("feedback rows tagged = %d, want 1", len(fbs))
	}
}

func TestFinalizeSurveyNoAnchorNoRetag(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")

	if err := s.InsertChat(&models.Chat{Usercode: "ABCD1234", UserMessage: "hi", SessionNo: 0, CreatedTime: time.Now().UTC().Add(-time.Minute)}); err != nil {
		t.Fatalf("insert chat: %v", err)
	}

	n, err := s.FinalizeSurvey("ABCD1234", map[int]int{1: 6, 2: 1}, time.Now().UTC())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("session = %d, want 1", n)
	}

	answers, err := s.ListAnswersByQuestion(1)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 1 || answers[0].SessionNo != 1 {
		t.Fatalf("expected answer stamped with session 1, got %+v", answers)
	}

	chats, err := s.ListChats("ABCD1234", 0, false)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected chat row to keep sentinel session, got %+v", chats)
	}
}

func TestFinalizeSurveyUnknownParticipant(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FinalizeSurvey("MISSING1", map[int]int{1: 1}, time.Now().UTC())
	se, ok := services.AsServiceError(err)
	if !ok || se.Code != services.ErrorNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSetSessionStartReanchors(t *testing.T) {
	s := newTestStore(t)
	addParticipant(t, s, "ABCD1234")

	first := time.Now().UTC().Add(-time.Hour)
	second := time.Now().UTC()
	for _, at := range []time.Time{first, second} {
		if ok, err := s.SetSessionStart("ABCD1234", at); err != nil || !ok {
			t.Fatalf("set session start: ok=%v err=%v", ok, err)
		}
	}
	p, err := s.GetParticipantByCode("ABCD1234")
	if err != nil || p == nil {
		t.Fatalf("get participant: %v", err)
	}
	if p.SessionStartTime == nil {
		t.Fatal("expected session start time to be set")
	}
	if p.SessionStartTime.Unix() != second.Unix() {
		t.Fatalf("anchor = %v, want %v (only the latest start call anchors)", p.SessionStartTime, second)
	}
}

func TestQuestionUpsertFlow(t *testing.T) {
	s := newTestStore(t)
	if err := s.InsertQuestion(&models.Question{ID: 1, Text: "first"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateQuestionText(1, "revised"); err != nil {
		t.Fatalf("update: %v", err)
	}
	q, err := s.GetQuestion(1)
	if err != nil || q == nil {
		t.Fatalf("get: %v", err)
	}
	if q.Text != "revised" {
		t.Fatalf("text = %q, want revised", q.Text)
	}
	if missing, err := s.GetQuestion(99); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown question, got %+v err=%v", missing, err)
	}
}
