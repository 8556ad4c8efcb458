package model

import "github.com/google/uuid"

// Difficulty is an advisory label carried from the question bank.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a multiple-choice item of the bank.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	SubjectID     int        `json:"subject_id"`
	QuestionText  string     `json:"question_text"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	CorrectOption string     `json:"-"`
	Difficulty    Difficulty `json:"difficulty"`
}

// QuestionSnapshot is the immutable copy of a question taken when a session
// starts. CorrectOption is stored as found in the bank; it may be malformed.
type QuestionSnapshot struct {
	QuestionID    uuid.UUID  `json:"question_id"`
	Position      int        `json:"position"`
	QuestionText  string     `json:"question_text"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	CorrectOption string     `json:"-"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Key returns the normalized correct option and whether it is gradable.
func (q *QuestionSnapshot) Key() (Option, bool) {
	return ParseOption(q.CorrectOption)
}

// SnapshotOf freezes a bank question at the given position.
func SnapshotOf(q Question, position int) QuestionSnapshot {
	return QuestionSnapshot{
		QuestionID:    q.ID,
		Position:      position,
		QuestionText:  q.QuestionText,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		OptionD:       q.OptionD,
		CorrectOption: q.CorrectOption,
		Difficulty:    q.Difficulty,
	}
}
