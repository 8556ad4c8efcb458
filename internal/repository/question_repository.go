package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionRepository reads and loads the question bank.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// PickForSession draws active questions of a subject in random order.
// limit <= 0 returns every active question.
func (r *QuestionRepository) PickForSession(ctx context.Context, subjectID, limit int) ([]model.Question, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject_id, question_text, option_a, option_b, option_c, option_d,
		        correct_option, difficulty
		 FROM questions
		 WHERE subject_id = $1 AND is_active
		 ORDER BY random()
		 LIMIT NULLIF($2::int, 0)`, subjectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.QuestionText,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectOption, &q.Difficulty); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountActive returns how many active questions a subject has.
func (r *QuestionRepository) CountActive(ctx context.Context, subjectID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE subject_id = $1 AND is_active`, subjectID,
	).Scan(&n)
	return n, err
}

// BulkInsert loads questions with COPY. Missing IDs are generated.
func (r *QuestionRepository) BulkInsert(ctx context.Context, questions []model.Question) (int64, error) {
	rows := make([][]any, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if q.Difficulty == "" {
			q.Difficulty = model.DifficultyMedium
		}
		rows[i] = []any{q.ID, q.SubjectID, q.QuestionText,
			q.OptionA, q.OptionB, q.OptionC, q.OptionD,
			q.CorrectOption, string(q.Difficulty)}
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "subject_id", "question_text", "option_a", "option_b", "option_c", "option_d", "correct_option", "difficulty"},
		pgx.CopyFromRows(rows),
	)
}
