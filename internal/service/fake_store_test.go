package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// memStore is an in-memory SessionStore with the same guarded-transition
// semantics as the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*model.ExamSession
	questions map[uuid.UUID][]model.QuestionSnapshot
	answers   map[uuid.UUID]map[uuid.UUID]*model.Answer

	answerWrites  int
	finalizeCalls int
	gradeCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[uuid.UUID]*model.ExamSession),
		questions: make(map[uuid.UUID][]model.QuestionSnapshot),
		answers:   make(map[uuid.UUID]map[uuid.UUID]*model.Answer),
	}
}

func copySession(s *model.ExamSession) *model.ExamSession {
	c := *s
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		c.SubmittedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.Total != nil {
		v := *s.Total
		c.Total = &v
	}
	return &c
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copySession(s), nil
}

func (m *memStore) GetActive(_ context.Context, studentID, subjectID int) (*model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.StudentID == studentID && s.SubjectID == subjectID && s.Status == model.SessionStatusInProgress {
			return copySession(s), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) CreateSession(_ context.Context, s *model.ExamSession, questions []model.QuestionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.StudentID == s.StudentID && existing.SubjectID == s.SubjectID &&
			existing.Status == model.SessionStatusInProgress {
			return repository.ErrActiveSessionExists
		}
	}

	s.ID = uuid.New()
	s.UpdatedAt = s.StartedAt
	m.sessions[s.ID] = copySession(s)
	m.questions[s.ID] = append([]model.QuestionSnapshot(nil), questions...)

	blank := make(map[uuid.UUID]*model.Answer, len(questions))
	for _, q := range questions {
		blank[q.QuestionID] = &model.Answer{SessionID: s.ID, QuestionID: q.QuestionID, UpdatedAt: s.StartedAt}
	}
	m.answers[s.ID] = blank
	return nil
}

func (m *memStore) ListQuestions(_ context.Context, sessionID uuid.UUID) ([]model.QuestionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QuestionSnapshot(nil), m.questions[sessionID]...), nil
}

func (m *memStore) ListAnswers(_ context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answerSnapshot(sessionID), nil
}

// answerSnapshot copies answers in question position order. Caller holds mu.
func (m *memStore) answerSnapshot(sessionID uuid.UUID) []model.Answer {
	var out []model.Answer
	for _, q := range m.questions[sessionID] {
		a, ok := m.answers[sessionID][q.QuestionID]
		if !ok {
			continue
		}
		c := *a
		if a.SelectedOption != nil {
			o := *a.SelectedOption
			c.SelectedOption = &o
		}
		out = append(out, c)
	}
	return out
}

func (m *memStore) RecordAnswer(_ context.Context, w repository.AnswerWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[w.SessionID]
	if !ok || s.Status != model.SessionStatusInProgress {
		return repository.ErrSessionNotLive
	}
	a, ok := m.answers[w.SessionID][w.QuestionID]
	if !ok {
		return repository.ErrQuestionNotInSession
	}

	s.RemainingSeconds = w.RemainingSeconds
	s.UpdatedAt = w.At
	if w.Patch.IsEmpty() {
		return nil
	}
	switch w.Patch.Selection {
	case model.SelectionSet:
		o := w.Patch.Option
		a.SelectedOption = &o
	case model.SelectionClear:
		a.SelectedOption = nil
	}
	if w.Patch.Flagged != nil {
		a.Flagged = *w.Patch.Flagged
	}
	a.UpdatedAt = w.At
	m.answerWrites++
	return nil
}

func (m *memStore) Finalize(_ context.Context, f model.Finalization, grade repository.GradeFunc) (*model.ExamSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeCalls++

	s, ok := m.sessions[f.SessionID]
	if !ok {
		return nil, false, pgx.ErrNoRows
	}
	if s.Status != model.SessionStatusInProgress {
		return copySession(s), false, nil
	}

	at := f.SubmittedAt
	s.Status = f.Status
	s.SubmittedAt = &at
	s.UpdatedAt = at
	if f.RemainingSeconds != nil {
		s.RemainingSeconds = *f.RemainingSeconds
	}

	m.gradeCalls++
	res := grade(m.questions[f.SessionID], m.answerSnapshot(f.SessionID))
	s.Score = &res.Score
	s.Total = &res.Total
	s.CorrectCount = res.CorrectCount
	s.WrongCount = res.WrongCount
	s.UnansweredCount = res.UnansweredCount
	return copySession(s), true, nil
}

func (m *memStore) ListByStudent(_ context.Context, studentID int) ([]model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamSession
	for _, s := range m.sessions {
		if s.StudentID == studentID {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range m.sessions {
		if s.Status == model.SessionStatusInProgress && !now.Before(s.Deadline()) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

// setAnswer writes an answer directly, bypassing the engine.
func (m *memStore) setAnswer(sessionID, questionID uuid.UUID, opt *model.Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[sessionID][questionID].SelectedOption = opt
}

func (m *memStore) answerRows(sessionID uuid.UUID) []model.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answerSnapshot(sessionID)
}

func (m *memStore) counts() (answerWrites, finalizeCalls, gradeCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answerWrites, m.finalizeCalls, m.gradeCalls
}

// ─── Collaborators ──────────────────────────────────────────────────

type memBank struct {
	questions map[int][]model.Question
}

func (b *memBank) PickForSession(_ context.Context, subjectID, limit int) ([]model.Question, error) {
	qs := b.questions[subjectID]
	if limit > 0 && limit < len(qs) {
		qs = qs[:limit]
	}
	return append([]model.Question(nil), qs...), nil
}

type memCatalog struct {
	subjects map[int]*model.Subject
}

func (c *memCatalog) GetByID(_ context.Context, id int) (*model.Subject, error) {
	s, ok := c.subjects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

type memPublisher struct {
	mu        sync.Mutex
	published []*model.ExamSession
}

func (p *memPublisher) Publish(_ context.Context, s *model.ExamSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, copySession(s))
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// fakeClock is a settable clock shared by the engine under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
