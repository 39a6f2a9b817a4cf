package core

// errors.go defines the engine's error taxonomy.
//
//   - ConfigurationError: the schema or engine setup is unusable. Raised while
//     building a schema (bad separator, unknown converter, bad parameters) or
//     when a record cannot be constructed or assigned. Never recovered.
//   - RowError: one data row failed one or more columns. Accumulated, not
//     returned as an error, until the error threshold trips.
//   - ErrorsExceededError: the threshold tripped. Terminal for the current
//     parse only and carries every RowError collected so far.
//   - IOError: the underlying reader or writer failed.

import (
	"errors"
	"fmt"
	"strings"
)

// MaxErrorMessageLength caps the text produced by ErrorsExceededError.Error.
var MaxErrorMessageLength = 4000

var (
	// ErrUnknownSchema is returned when no schema is registered under a name.
	ErrUnknownSchema = errors.New("unknown schema")

	// ErrEmptyInput is returned when the input has no header line.
	ErrEmptyInput = errors.New("empty file: no header line")
)

// ConfigurationError reports a schema or engine setup that cannot work.
type ConfigurationError struct {
	Schema string // Schema name, if known
	Column string // Column name, if the problem is column-specific
	Op     string // What was being done: "separator", "converter", "validator", "new", "assign"
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Schema != "" {
		b.WriteString(" in schema ")
		b.WriteString(e.Schema)
	}
	if e.Column != "" {
		b.WriteString(" column ")
		b.WriteString(e.Column)
	}
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RowError collects every column failure of a single data row.
type RowError struct {
	LineNumber int               // 1-based physical line in the input
	Line       string            // Raw fields re-joined with the schema separator
	Errors     []ValidationError // One entry per failing column, in column order
}

// Messages returns the human-readable message of each failing column.
func (e *RowError) Messages() []string {
	out := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		out[i] = ve.Error()
	}
	return out
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d %q: %s", e.LineNumber, e.Line, strings.Join(e.Messages(), "; "))
}

// ErrorsExceededError is returned when a parse collects more row errors than
// the configured maximum.
type ErrorsExceededError struct {
	Max    int
	Errors []*RowError
}

func (e *ErrorsExceededError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "too many invalid rows (%d, max %d)", len(e.Errors), e.Max)
	for _, re := range e.Errors {
		msg := re.Error()
		if b.Len()+len(msg)+2 > MaxErrorMessageLength {
			b.WriteString("; ...")
			break
		}
		b.WriteString("; ")
		b.WriteString(msg)
	}
	return b.String()
}

// IOError wraps a failure of the underlying line reader or writer.
type IOError struct {
	Op  string // "open", "read header", "read", "write", "close"
	Err error
}

func (e *IOError) Error() string { return "csv " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
