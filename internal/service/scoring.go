package service

import (
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Outcome is the graded state of one question.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeWrong      Outcome = "wrong"
	OutcomeUnanswered Outcome = "unanswered"
	// OutcomeUngradable marks a snapshot whose answer key is not A-D.
	// Such questions count toward nothing.
	OutcomeUngradable Outcome = "ungradable"
)

// GradeQuestion grades a single snapshot against the student's answer.
// a may be nil.
func GradeQuestion(q *model.QuestionSnapshot, a *model.Answer) Outcome {
	key, ok := q.Key()
	if !ok {
		return OutcomeUngradable
	}
	if a == nil || a.SelectedOption == nil {
		return OutcomeUnanswered
	}
	if *a.SelectedOption == key {
		return OutcomeCorrect
	}
	return OutcomeWrong
}

// Grade scores a whole session. Score is round(100 * correct / total) over
// gradable questions, 0 when none are gradable.
func Grade(questions []model.QuestionSnapshot, answers []model.Answer) model.SessionScore {
	byQuestion := indexAnswers(answers)

	var res model.SessionScore
	for i := range questions {
		switch GradeQuestion(&questions[i], byQuestion[questions[i].QuestionID]) {
		case OutcomeCorrect:
			res.CorrectCount++
		case OutcomeWrong:
			res.WrongCount++
		case OutcomeUnanswered:
			res.UnansweredCount++
		default:
			continue
		}
		res.Total++
	}

	if res.Total > 0 {
		res.Score = int(math.Round(100 * float64(res.CorrectCount) / float64(res.Total)))
	}
	return res
}

func indexAnswers(answers []model.Answer) map[uuid.UUID]*model.Answer {
	m := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		m[answers[i].QuestionID] = &answers[i]
	}
	return m
}
