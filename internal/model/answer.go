package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Option is one of the four answer choices of a multiple-choice question.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Valid reports whether o is one of A, B, C or D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// ParseOption normalizes raw (trimmed, upper-cased) and reports whether it
// names a valid option.
func ParseOption(raw string) (Option, bool) {
	o := Option(strings.ToUpper(strings.TrimSpace(raw)))
	return o, o.Valid()
}

// Answer is the student's current response to one question of a session.
// A nil SelectedOption means unanswered.
type Answer struct {
	SessionID      uuid.UUID `json:"-"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *Option   `json:"selected_option"`
	Flagged        bool      `json:"flagged"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SelectionChange is the tri-state selection part of an AnswerPatch.
type SelectionChange int

const (
	SelectionUnchanged SelectionChange = iota
	SelectionSet
	SelectionClear
)

// AnswerPatch is a partial update of an Answer.
type AnswerPatch struct {
	Selection SelectionChange
	Option    Option
	Flagged   *bool
}

// IsEmpty reports whether the patch leaves the answer untouched.
func (p AnswerPatch) IsEmpty() bool {
	return p.Selection == SelectionUnchanged && p.Flagged == nil
}

// OptionField is the selected_option field of an answer update. It tells an
// omitted key apart from an explicit null.
type OptionField struct {
	Present bool
	Null    bool
	Value   string
}

// SetOption returns a present, non-null OptionField.
func SetOption(v string) OptionField {
	return OptionField{Present: true, Value: v}
}

// NullOption returns an explicit null OptionField.
func NullOption() OptionField {
	return OptionField{Present: true, Null: true}
}

// UnmarshalJSON only runs when the key is present.
func (f *OptionField) UnmarshalJSON(b []byte) error {
	f.Present = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Null = true
		f.Value = ""
		return nil
	}
	f.Null = false
	return json.Unmarshal(b, &f.Value)
}

func (f OptionField) MarshalJSON() ([]byte, error) {
	if !f.Present || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// ToPatch converts the wire request into an AnswerPatch. ok is false when
// the selected option is not a valid choice. An explicit null or an empty
// string clears the selection.
func (r *RecordAnswerRequest) ToPatch() (AnswerPatch, bool) {
	patch := AnswerPatch{Flagged: r.Flagged}
	sel := r.SelectedOption
	if !sel.Present {
		return patch, true
	}
	if sel.Null || strings.TrimSpace(sel.Value) == "" {
		patch.Selection = SelectionClear
		return patch, true
	}
	opt, ok := ParseOption(sel.Value)
	if !ok {
		return patch, false
	}
	patch.Selection = SelectionSet
	patch.Option = opt
	return patch, true
}
