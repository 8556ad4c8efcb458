package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/tracing"
	"go.opentelemetry.io/otel/codes"
)

// Session engine errors.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("session belongs to another student")
	ErrSessionNotActive     = errors.New("session is no longer in progress")
	ErrSessionInProgress    = errors.New("session is still in progress")
	ErrUnknownQuestion      = errors.New("question is not part of this session")
	ErrNoQuestionsAvailable = errors.New("subject has no questions available")
	ErrInvalidAnswer        = errors.New("invalid answer payload")
)

// maxStartAttempts bounds the re-read loop when a concurrent start wins the
// unique index.
const maxStartAttempts = 3

// SessionStore is the durable state behind the engine.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetActive(ctx context.Context, studentID, subjectID int) (*model.ExamSession, error)
	CreateSession(ctx context.Context, s *model.ExamSession, questions []model.QuestionSnapshot) error
	ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionSnapshot, error)
	ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	RecordAnswer(ctx context.Context, w repository.AnswerWrite) error
	Finalize(ctx context.Context, f model.Finalization, grade repository.GradeFunc) (*model.ExamSession, bool, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// QuestionBank supplies candidate questions for a new session.
type QuestionBank interface {
	PickForSession(ctx context.Context, subjectID, limit int) ([]model.Question, error)
}

// SubjectCatalog resolves subjects.
type SubjectCatalog interface {
	GetByID(ctx context.Context, id int) (*model.Subject, error)
}

// ResultPublisher receives every session that was just finalized.
type ResultPublisher interface {
	Publish(ctx context.Context, s *model.ExamSession) error
}

// SessionOptions tunes the engine.
type SessionOptions struct {
	// QuestionsPerSession caps the draw; zero takes every active question.
	QuestionsPerSession int
	ReviewWindow        time.Duration
	// ExpiryGrace is how late a submit may arrive and still count as submitted.
	ExpiryGrace time.Duration
}

// ExamSessionService runs the exam session lifecycle. It holds no per-session
// state; everything is read from and written to the store.
type ExamSessionService struct {
	store     SessionStore
	bank      QuestionBank
	subjects  SubjectCatalog
	publisher ResultPublisher
	gate      ReviewGate
	opts      SessionOptions
	log       zerolog.Logger
	now       func() time.Time
}

// NewExamSessionService creates a new ExamSessionService. publisher may be nil.
func NewExamSessionService(
	store SessionStore,
	bank QuestionBank,
	subjects SubjectCatalog,
	publisher ResultPublisher,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		store:     store,
		bank:      bank,
		subjects:  subjects,
		publisher: publisher,
		gate:      NewReviewGate(opts.ReviewWindow),
		opts:      opts,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ─── Views ──────────────────────────────────────────────────────────

// StartResult is returned by StartSession.
type StartResult struct {
	Session *model.ExamSession `json:"session"`
	Resumed bool               `json:"resumed"`
}

// SessionState is everything a client needs to render a live session.
// Snapshots never carry the answer key.
type SessionState struct {
	Session          *model.ExamSession       `json:"session"`
	Questions        []model.QuestionSnapshot `json:"questions"`
	Answers          []model.Answer           `json:"answers"`
	RemainingSeconds int                      `json:"remaining_seconds"`
	Deadline         time.Time                `json:"deadline"`
}

// RecordAnswerInput is one answer write from a student.
type RecordAnswerInput struct {
	StudentID        int
	SessionID        uuid.UUID
	QuestionID       uuid.UUID
	Patch            model.AnswerPatch
	RemainingSeconds *int
}

// ResultItem is the per-question detail shown while the review window is open.
type ResultItem struct {
	QuestionID     uuid.UUID        `json:"question_id"`
	Position       int              `json:"position"`
	QuestionText   string           `json:"question_text"`
	OptionA        string           `json:"option_a"`
	OptionB        string           `json:"option_b"`
	OptionC        string           `json:"option_c"`
	OptionD        string           `json:"option_d"`
	SelectedOption *model.Option    `json:"selected_option"`
	CorrectOption  *model.Option    `json:"correct_option"`
	Outcome        Outcome          `json:"outcome"`
	Flagged        bool             `json:"flagged"`
	Difficulty     model.Difficulty `json:"difficulty"`
}

// ResultView is the graded outcome of a finished session. Items is only
// populated while the review window is open.
type ResultView struct {
	SessionID       uuid.UUID           `json:"session_id"`
	SubjectID       int                 `json:"subject_id"`
	Status          model.SessionStatus `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	SubmittedAt     *time.Time          `json:"submitted_at"`
	Score           int                 `json:"score"`
	Total           int                 `json:"total"`
	CorrectCount    int                 `json:"correct_count"`
	WrongCount      int                 `json:"wrong_count"`
	UnansweredCount int                 `json:"unanswered_count"`
	ReviewExpired   bool                `json:"review_expired"`
	ReviewClosesAt  *time.Time          `json:"review_closes_at,omitempty"`
	Items           []ResultItem        `json:"items,omitempty"`
}

// HistoryEntry is one row of a student's attempt list.
type HistoryEntry struct {
	model.ExamSession
	ReviewExpired bool `json:"review_expired"`
}

// ─── Operations ─────────────────────────────────────────────────────

// StartSession returns the student's in-progress session for the subject,
// creating one with a fresh question snapshot when none exists.
func (s *ExamSessionService) StartSession(ctx context.Context, studentID, subjectID int) (*StartResult, error) {
	for attempt := 0; attempt < maxStartAttempts; attempt++ {
		now := s.now()

		existing, err := s.store.GetActive(ctx, studentID, subjectID)
		switch {
		case err == nil:
			if !existing.IsOverdue(now) {
				metrics.SessionsStarted.WithLabelValues("true").Inc()
				return &StartResult{Session: existing, Resumed: true}, nil
			}
			// A dead clock is never resumed; close it and start over.
			if _, _, err := s.expire(ctx, existing, now); err != nil {
				return nil, err
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("get active session: %w", err)
		}

		session, err := s.createSession(ctx, studentID, subjectID, now)
		if errors.Is(err, repository.ErrActiveSessionExists) {
			s.log.Debug().Int("student_id", studentID).Int("subject_id", subjectID).
				Msg("Concurrent start detected, resuming winner")
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.SessionsStarted.WithLabelValues("false").Inc()
		s.log.Info().
			Str("session_id", session.ID.String()).
			Int("student_id", studentID).
			Int("subject_id", subjectID).
			Msg("Exam session started")
		return &StartResult{Session: session}, nil
	}
	return nil, fmt.Errorf("start session: active session changed %d times", maxStartAttempts)
}

func (s *ExamSessionService) createSession(ctx context.Context, studentID, subjectID int, now time.Time) (*model.ExamSession, error) {
	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if !subject.IsActive {
		return nil, ErrNotFound
	}

	questions, err := s.bank.PickForSession(ctx, subjectID, s.opts.QuestionsPerSession)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	snapshots := make([]model.QuestionSnapshot, len(questions))
	for i, q := range questions {
		snapshots[i] = model.SnapshotOf(q, i+1)
	}

	session := &model.ExamSession{
		StudentID:        studentID,
		SubjectID:        subjectID,
		Status:           model.SessionStatusInProgress,
		StartedAt:        now.Truncate(time.Microsecond),
		DurationMinutes:  subject.DurationMinutes,
		RemainingSeconds: subject.DurationMinutes * 60,
	}
	if err := s.store.CreateSession(ctx, session, snapshots); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// LoadSession returns a live session with its questions and answers.
// A session whose server deadline has passed is expired on the spot.
func (s *ExamSessionService) LoadSession(ctx context.Context, sessionID uuid.UUID, studentID int) (*SessionState, error) {
	sess, err := s.loadOwned(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.ensureLive(ctx, sess, now); err != nil {
		return nil, err
	}

	questions, err := s.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	if answers == nil {
		answers = []model.Answer{}
	}

	return &SessionState{
		Session:          sess,
		Questions:        questions,
		Answers:          answers,
		RemainingSeconds: min(sess.RemainingSeconds, sess.ServerRemaining(now)),
		Deadline:         sess.Deadline(),
	}, nil
}

// RecordAnswer applies a partial answer update and stores the client clock
// reading, clamped to the server deadline. It returns the stored remaining
// seconds.
func (s *ExamSessionService) RecordAnswer(ctx context.Context, in RecordAnswerInput) (int, error) {
	if in.Patch.Selection == model.SelectionSet && !in.Patch.Option.Valid() {
		return 0, ErrInvalidAnswer
	}
	if in.RemainingSeconds != nil && *in.RemainingSeconds < 0 {
		return 0, ErrInvalidAnswer
	}

	sess, err := s.loadOwned(ctx, in.SessionID, in.StudentID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	if err := s.ensureLive(ctx, sess, now); err != nil {
		return 0, err
	}

	remaining := clampRemaining(in.RemainingSeconds, sess.ServerRemaining(now))
	err = s.store.RecordAnswer(ctx, repository.AnswerWrite{
		SessionID:        in.SessionID,
		QuestionID:       in.QuestionID,
		Patch:            in.Patch,
		RemainingSeconds: remaining,
		At:               now,
	})
	switch {
	case errors.Is(err, repository.ErrSessionNotLive):
		return 0, ErrSessionNotActive
	case errors.Is(err, repository.ErrQuestionNotInSession):
		return 0, ErrUnknownQuestion
	case err != nil:
		return 0, fmt.Errorf("record answer: %w", err)
	}

	metrics.AnswersRecorded.Inc()
	return remaining, nil
}

// Submit finalizes the session on the student's request. Repeated calls
// return the stored result. A submit arriving later than deadline plus
// grace is recorded as expired.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID, studentID int, remainingSeconds *int) (*model.ExamSession, error) {
	if remainingSeconds != nil && *remainingSeconds < 0 {
		return nil, ErrInvalidAnswer
	}
	sess, err := s.loadOwned(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}

	now := s.now()
	f := model.Finalization{
		SessionID:   sessionID,
		Status:      model.SessionStatusSubmitted,
		SubmittedAt: now,
	}
	if now.After(sess.Deadline().Add(s.opts.ExpiryGrace)) {
		zero := 0
		f.Status = model.SessionStatusExpired
		f.RemainingSeconds = &zero
	} else {
		remaining := clampRemaining(remainingSeconds, sess.ServerRemaining(now))
		f.RemainingSeconds = &remaining
	}

	result, _, err := s.finalize(ctx, f)
	return result, err
}

// ExpireSession closes a session whose server deadline has passed. Calling it
// on a session that still has time, or one already closed, changes nothing
// and returns the current state.
func (s *ExamSessionService) ExpireSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	result, _, err := s.expire(ctx, sess, s.now())
	return result, err
}

// GetResult returns the graded outcome of a finished session, with
// per-question detail only while the review window is open.
func (s *ExamSessionService) GetResult(ctx context.Context, sessionID uuid.UUID, studentID int) (*ResultView, error) {
	sess, err := s.loadOwned(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !sess.Status.IsTerminal() {
		if !sess.IsOverdue(now) {
			return nil, ErrSessionInProgress
		}
		if sess, _, err = s.expire(ctx, sess, now); err != nil {
			return nil, err
		}
	}

	view := &ResultView{
		SessionID:       sess.ID,
		SubjectID:       sess.SubjectID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		SubmittedAt:     sess.SubmittedAt,
		CorrectCount:    sess.CorrectCount,
		WrongCount:      sess.WrongCount,
		UnansweredCount: sess.UnansweredCount,
		ReviewClosesAt:  s.gate.ClosesAt(sess),
	}
	if sess.Score != nil {
		view.Score = *sess.Score
	}
	if sess.Total != nil {
		view.Total = *sess.Total
	}

	if !s.gate.CanViewDetail(sess, now) {
		view.ReviewExpired = true
		return view, nil
	}

	questions, err := s.store.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	view.Items = buildResultItems(questions, answers)
	return view, nil
}

// ListHistory returns the student's sessions, newest first, aggregates only.
func (s *ExamSessionService) ListHistory(ctx context.Context, studentID int) ([]HistoryEntry, error) {
	sessions, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.now()
	entries := make([]HistoryEntry, 0, len(sessions))
	for i := range sessions {
		entries = append(entries, HistoryEntry{
			ExamSession:   sessions[i],
			ReviewExpired: sessions[i].Status.IsTerminal() && !s.gate.CanViewDetail(&sessions[i], now),
		})
	}
	return entries, nil
}

// SweepExpired expires up to limit overdue sessions and reports how many
// transitions it applied. Failures on single sessions are logged and skipped.
func (s *ExamSessionService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		sess, err := s.store.GetByID(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("Sweep: load session failed")
			continue
		}
		_, applied, err := s.expire(ctx, sess, s.now())
		if err != nil {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("Sweep: expire failed")
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

// ─── Internals ──────────────────────────────────────────────────────

func (s *ExamSessionService) loadOwned(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.ExamSession, error) {
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.StudentID != studentID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// ensureLive rejects terminal sessions and expires overdue ones.
func (s *ExamSessionService) ensureLive(ctx context.Context, sess *model.ExamSession, now time.Time) error {
	if sess.Status.IsTerminal() {
		return ErrSessionNotActive
	}
	if sess.IsOverdue(now) {
		if _, _, err := s.expire(ctx, sess, now); err != nil {
			return err
		}
		return ErrSessionNotActive
	}
	return nil
}

func (s *ExamSessionService) expire(ctx context.Context, sess *model.ExamSession, now time.Time) (*model.ExamSession, bool, error) {
	if sess.Status.IsTerminal() || !sess.IsOverdue(now) {
		return sess, false, nil
	}
	zero := 0
	return s.finalize(ctx, model.Finalization{
		SessionID:        sess.ID,
		Status:           model.SessionStatusExpired,
		SubmittedAt:      now,
		RemainingSeconds: &zero,
	})
}

// finalize runs the guarded transition. Losing the race is not an error:
// the caller gets whatever terminal state won.
func (s *ExamSessionService) finalize(ctx context.Context, f model.Finalization) (*model.ExamSession, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ExamSession.Finalize",
		"session.id", f.SessionID.String(),
		"session.target_status", string(f.Status),
	)
	defer span.End()

	result, applied, err := s.store.Finalize(ctx, f, Grade)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("finalize session: %w", err)
	}
	if !applied {
		return result, false, nil
	}

	metrics.SessionsFinalized.WithLabelValues(string(result.Status)).Inc()
	if result.Score != nil {
		metrics.SessionScore.Observe(float64(*result.Score))
	}

	logEvent := s.log.Info().
		Str("session_id", result.ID.String()).
		Int("student_id", result.StudentID).
		Str("status", string(result.Status)).
		Int("correct", result.CorrectCount)
	if result.Score != nil && result.Total != nil {
		logEvent = logEvent.Int("score", *result.Score).Int("total", *result.Total)
	}
	logEvent.Msg("Exam session finalized")

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("session_id", result.ID.String()).Msg("Publish result failed")
		}
	}
	return result, true, nil
}

// clampRemaining bounds a client clock reading to [0, ceiling]. A missing
// reading takes the ceiling.
func clampRemaining(client *int, ceiling int) int {
	if client == nil {
		return ceiling
	}
	return max(0, min(*client, ceiling))
}

func buildResultItems(questions []model.QuestionSnapshot, answers []model.Answer) []ResultItem {
	byQuestion := indexAnswers(answers)
	items := make([]ResultItem, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		a := byQuestion[q.QuestionID]

		item := ResultItem{
			QuestionID:   q.QuestionID,
			Position:     q.Position,
			QuestionText: q.QuestionText,
			OptionA:      q.OptionA,
			OptionB:      q.OptionB,
			OptionC:      q.OptionC,
			OptionD:      q.OptionD,
			Outcome:      GradeQuestion(q, a),
			Difficulty:   q.Difficulty,
		}
		if key, ok := q.Key(); ok {
			item.CorrectOption = &key
		}
		if a != nil {
			item.SelectedOption = a.SelectedOption
			item.Flagged = a.Flagged
		}
		items = append(items, item)
	}
	return items
}
