package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "configuration error",
			err:      &ConfigurationError{Schema: "people", Op: "converter", Err: errors.New("bad")},
			wantCode: "CFG001",
		},
		{
			name:     "unknown schema wrapped",
			err:      fmt.Errorf("%w: %q", ErrUnknownSchema, "nope"),
			wantCode: "CFG002",
		},
		{
			name:     "unknown charset",
			err:      &ConfigurationError{Op: "charset", Err: errors.New("unknown")},
			wantCode: "CFG003",
		},
		{
			name:     "row error",
			err:      &RowError{LineNumber: 2, Line: "a", Errors: []ValidationError{{Field: "a", Message: "bad"}}},
			wantCode: "VAL001",
		},
		{
			name:     "errors exceeded wins over row detail",
			err:      fmt.Errorf("parse: %w", &ErrorsExceededError{Max: 0, Errors: []*RowError{{LineNumber: 2}}}),
			wantCode: "VAL002",
		},
		{
			name:     "empty input",
			err:      ErrEmptyInput,
			wantCode: "FILE002",
		},
		{
			name:     "io error",
			err:      &IOError{Op: "read", Err: errors.New("disk on fire")},
			wantCode: "FILE003",
		},
		{
			name:     "busy",
			err:      ErrTooManyParses,
			wantCode: "PRS001",
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("handle line 3: %w", context.Canceled),
			wantCode: "PRS002",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: "PRS003",
		},
		{
			name:     "body limit",
			err:      errors.New("http: request body too large"),
			wantCode: "FILE001",
		},
		{
			name:     "malformed parameter",
			err:      fmt.Errorf("%w: limit %q", errors.New("invalid parameter"), "x"),
			wantCode: "REQ001",
		},
		{
			name:     "duplicate key case insensitive",
			err:      errors.New("ERROR: DUPLICATE KEY value violates unique constraint"),
			wantCode: "DB001",
		},
		{
			name:     "sqlite unique",
			err:      errors.New("constraint failed: UNIQUE constraint failed: people.id"),
			wantCode: "DB001",
		},
		{
			name:     "sink pattern inside io error",
			err:      &IOError{Op: "write", Err: errors.New("dial tcp: connection refused")},
			wantCode: "DB002",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() message is empty")
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrEmptyInput)

	expected := "The uploaded file is empty (Code: FILE002). Upload a file with a header line"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("duplicate key"), true},
		{"typed error is user facing", ErrTooManyParses, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
