package model

import (
	"encoding/json"
	"testing"
)

func TestParseOption(t *testing.T) {
	tests := []struct {
		raw    string
		want   Option
		wantOK bool
	}{
		{"A", OptionA, true},
		{"d", OptionD, true},
		{" b ", OptionB, true},
		{"E", "E", false},
		{"", "", false},
		{"AB", "AB", false},
	}

	for _, tt := range tests {
		got, ok := ParseOption(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseOption(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRecordAnswerRequestToPatch(t *testing.T) {
	yes := true

	tests := []struct {
		name      string
		req       RecordAnswerRequest
		wantPatch AnswerPatch
		wantOK    bool
		wantEmpty bool
	}{
		{
			name:      "nothing set",
			req:       RecordAnswerRequest{},
			wantPatch: AnswerPatch{},
			wantOK:    true,
			wantEmpty: true,
		},
		{
			name:      "select normalizes case",
			req:       RecordAnswerRequest{SelectedOption: SetOption("c")},
			wantPatch: AnswerPatch{Selection: SelectionSet, Option: OptionC},
			wantOK:    true,
		},
		{
			name:      "empty string clears",
			req:       RecordAnswerRequest{SelectedOption: SetOption("")},
			wantPatch: AnswerPatch{Selection: SelectionClear},
			wantOK:    true,
		},
		{
			name:      "explicit null clears",
			req:       RecordAnswerRequest{SelectedOption: NullOption()},
			wantPatch: AnswerPatch{Selection: SelectionClear},
			wantOK:    true,
		},
		{
			name:      "flag only leaves selection untouched",
			req:       RecordAnswerRequest{Flagged: &yes},
			wantPatch: AnswerPatch{Selection: SelectionUnchanged, Flagged: &yes},
			wantOK:    true,
		},
		{
			name:   "invalid option",
			req:    RecordAnswerRequest{SelectedOption: SetOption("Z")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.req.ToPatch()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Selection != tt.wantPatch.Selection || got.Option != tt.wantPatch.Option {
				t.Errorf("patch = %+v, want %+v", got, tt.wantPatch)
			}
			if (got.Flagged == nil) != (tt.wantPatch.Flagged == nil) {
				t.Errorf("flagged presence = %v, want %v", got.Flagged != nil, tt.wantPatch.Flagged != nil)
			}
			if got.IsEmpty() != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", got.IsEmpty(), tt.wantEmpty)
			}
		})
	}
}

func TestRecordAnswerRequestDecode(t *testing.T) {
	tests := []struct {
		body          string
		wantSelection SelectionChange
		wantOption    Option
	}{
		{`{}`, SelectionUnchanged, ""},
		{`{"flagged":true}`, SelectionUnchanged, ""},
		{`{"selected_option":null}`, SelectionClear, ""},
		{`{"selected_option":""}`, SelectionClear, ""},
		{`{"selected_option":"a"}`, SelectionSet, OptionA},
	}

	for _, tt := range tests {
		var req RecordAnswerRequest
		if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		patch, ok := req.ToPatch()
		if !ok {
			t.Fatalf("%s: rejected", tt.body)
		}
		if patch.Selection != tt.wantSelection || patch.Option != tt.wantOption {
			t.Errorf("%s: patch = %+v, want selection %d option %q", tt.body, patch, tt.wantSelection, tt.wantOption)
		}
	}

	var req RecordAnswerRequest
	if err := json.Unmarshal([]byte(`{"selected_option":7}`), &req); err == nil {
		t.Error("numeric selected_option decoded")
	}
}

func TestOptionFieldMarshal(t *testing.T) {
	tests := []struct {
		field OptionField
		want  string
	}{
		{OptionField{}, "null"},
		{NullOption(), "null"},
		{SetOption("B"), `"B"`},
	}
	for _, tt := range tests {
		raw, err := json.Marshal(tt.field)
		if err != nil {
			t.Fatalf("Marshal(%+v): %v", tt.field, err)
		}
		if string(raw) != tt.want {
			t.Errorf("Marshal(%+v) = %s, want %s", tt.field, raw, tt.want)
		}
	}
}
