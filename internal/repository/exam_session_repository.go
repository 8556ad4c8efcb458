package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

var (
	// ErrActiveSessionExists is returned by CreateSession when the partial
	// unique index already holds an in-progress row for the pair.
	ErrActiveSessionExists = errors.New("an in-progress session already exists for this student and subject")
	// ErrSessionNotLive is returned when a write targets a session that is
	// no longer in progress.
	ErrSessionNotLive = errors.New("session is not in progress")
	// ErrQuestionNotInSession is returned when an answer targets a question
	// that is not part of the session snapshot.
	ErrQuestionNotInSession = errors.New("question is not part of this session")
)

// GradeFunc scores a session from its snapshots and answers.
type GradeFunc func(questions []model.QuestionSnapshot, answers []model.Answer) model.SessionScore

// AnswerWrite is one partial answer update plus the clock reading stored with it.
type AnswerWrite struct {
	SessionID        uuid.UUID
	QuestionID       uuid.UUID
	Patch            model.AnswerPatch
	RemainingSeconds int
	At               time.Time
}

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, student_id, subject_id, status, started_at, submitted_at,
	duration_minutes, remaining_seconds, score, total,
	correct_count, wrong_count, unanswered_count, updated_at`

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(
		&s.ID, &s.StudentID, &s.SubjectID, &s.Status, &s.StartedAt, &s.SubmittedAt,
		&s.DurationMinutes, &s.RemainingSeconds, &s.Score, &s.Total,
		&s.CorrectCount, &s.WrongCount, &s.UnansweredCount, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by its ID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetActive retrieves the in-progress session for a student-subject pair.
func (r *ExamSessionRepository) GetActive(ctx context.Context, studentID, subjectID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE student_id = $1 AND subject_id = $2 AND status = 'in_progress'`,
		studentID, subjectID))
}

// CreateSession inserts a session together with its question snapshots and
// blank answer rows in one transaction.
func (r *ExamSessionRepository) CreateSession(ctx context.Context, s *model.ExamSession, questions []model.QuestionSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exam_sessions
			(student_id, subject_id, status, started_at, duration_minutes, remaining_seconds, updated_at)
		 VALUES ($1, $2, 'in_progress', $3, $4, $5, $3)
		 ON CONFLICT (student_id, subject_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id`,
		s.StudentID, s.SubjectID, s.StartedAt, s.DurationMinutes, s.RemainingSeconds,
	).Scan(&s.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"session_questions"},
		[]string{"session_id", "question_id", "position", "question_text",
			"option_a", "option_b", "option_c", "option_d", "correct_option", "difficulty"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{s.ID, q.QuestionID, q.Position, q.QuestionText,
				q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, string(q.Difficulty)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"session_answers"},
		[]string{"session_id", "question_id", "flagged", "updated_at"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			return []any{s.ID, questions[i].QuestionID, false, s.StartedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy answers: %w", err)
	}

	s.Status = model.SessionStatusInProgress
	s.UpdatedAt = s.StartedAt
	return tx.Commit(ctx)
}

// ListQuestions returns the session's snapshots in presentation order.
func (r *ExamSessionRepository) ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionSnapshot, error) {
	return listQuestions(ctx, r.pool, sessionID)
}

// ListAnswers returns the session's answers.
func (r *ExamSessionRepository) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	return listAnswers(ctx, r.pool, sessionID)
}

// RecordAnswer applies a partial answer update. The session row is locked by
// the guarded update first so the write cannot interleave with a terminal
// transition.
func (r *ExamSessionRepository) RecordAnswer(ctx context.Context, w AnswerWrite) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE exam_sessions
			 SET remaining_seconds = $2, updated_at = $3
			 WHERE id = $1 AND status = 'in_progress'`,
			w.SessionID, w.RemainingSeconds, w.At)
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrSessionNotLive
		}

		// A clock-only update leaves the answer row alone.
		if w.Patch.IsEmpty() {
			var member bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM session_questions WHERE session_id = $1 AND question_id = $2)`,
				w.SessionID, w.QuestionID).Scan(&member); err != nil {
				return fmt.Errorf("check question: %w", err)
			}
			if !member {
				return ErrQuestionNotInSession
			}
			return nil
		}

		var selected *string
		if w.Patch.Selection == model.SelectionSet {
			v := string(w.Patch.Option)
			selected = &v
		}

		tag, err = tx.Exec(ctx,
			`INSERT INTO session_answers (session_id, question_id, selected_option, flagged, updated_at)
			 SELECT sq.session_id, sq.question_id, $4::text, COALESCE($5::boolean, FALSE), $6
			 FROM session_questions sq
			 WHERE sq.session_id = $1 AND sq.question_id = $2
			 ON CONFLICT (session_id, question_id) DO UPDATE SET
			     selected_option = CASE $3::int
			         WHEN 1 THEN EXCLUDED.selected_option
			         WHEN 2 THEN NULL
			         ELSE session_answers.selected_option
			     END,
			     flagged = COALESCE($5::boolean, session_answers.flagged),
			     updated_at = EXCLUDED.updated_at`,
			w.SessionID, w.QuestionID, int(w.Patch.Selection), selected, w.Patch.Flagged, w.At)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrQuestionNotInSession
		}
		return nil
	})
}

// Finalize performs the guarded in_progress → terminal transition and grades
// the session in the same transaction. When the session is already terminal
// nothing is written and the stored row is returned with applied=false.
func (r *ExamSessionRepository) Finalize(ctx context.Context, f model.Finalization, grade GradeFunc) (*model.ExamSession, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $2,
		     submitted_at = $3,
		     remaining_seconds = COALESCE($4, remaining_seconds),
		     updated_at = $3
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+sessionColumns,
		f.SessionID, f.Status, f.SubmittedAt, f.RemainingSeconds))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("transition session: %w", err)
		}
		// Lost the race or already terminal: report what is stored.
		_ = tx.Rollback(ctx)
		current, getErr := r.GetByID(ctx, f.SessionID)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}

	questions, err := listQuestions(ctx, tx, f.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshots: %w", err)
	}
	answers, err := listAnswers(ctx, tx, f.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load answers: %w", err)
	}

	result := grade(questions, answers)
	_, err = tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET score = $2, total = $3, correct_count = $4, wrong_count = $5, unanswered_count = $6
		 WHERE id = $1`,
		f.SessionID, result.Score, result.Total, result.CorrectCount, result.WrongCount, result.UnansweredCount)
	if err != nil {
		return nil, false, fmt.Errorf("store score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	s.Score = &result.Score
	s.Total = &result.Total
	s.CorrectCount = result.CorrectCount
	s.WrongCount = result.WrongCount
	s.UnansweredCount = result.UnansweredCount
	return s, true, nil
}

// ListByStudent retrieves all sessions for a given student, newest first.
func (r *ExamSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListOverdue returns ids of in-progress sessions whose deadline is at or
// before now, oldest first.
func (r *ExamSessionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM exam_sessions
		 WHERE status = 'in_progress'
		   AND started_at + make_interval(mins => duration_minutes) <= $1
		 ORDER BY started_at
		 LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ----------------------------------------------------------------
// Shared readers (pool or tx)
// ----------------------------------------------------------------

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listQuestions(ctx context.Context, q querier, sessionID uuid.UUID) ([]model.QuestionSnapshot, error) {
	rows, err := q.Query(ctx,
		`SELECT question_id, position, question_text, option_a, option_b, option_c, option_d,
		        correct_option, difficulty
		 FROM session_questions
		 WHERE session_id = $1
		 ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QuestionSnapshot
	for rows.Next() {
		var s model.QuestionSnapshot
		if err := rows.Scan(&s.QuestionID, &s.Position, &s.QuestionText,
			&s.OptionA, &s.OptionB, &s.OptionC, &s.OptionD,
			&s.CorrectOption, &s.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func listAnswers(ctx context.Context, q querier, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := q.Query(ctx,
		`SELECT question_id, selected_option, flagged, updated_at
		 FROM session_answers
		 WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Answer
	for rows.Next() {
		a := model.Answer{SessionID: sessionID}
		var selected *string
		if err := rows.Scan(&a.QuestionID, &selected, &a.Flagged, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if selected != nil {
			opt := model.Option(*selected)
			a.SelectedOption = &opt
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
