package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// Engine errors are matched by type first; anything else (sink and database
// failures, HTTP body limits) falls back to case-insensitive substring
// patterns, first match wins.
//
//	CFG001  schema or engine configuration is unusable
//	CFG002  unknown schema
//	CFG003  unsupported character set
//	VAL001  one or more rows failed validation
//	VAL002  too many invalid rows, parse aborted
//	FILE001 file too large
//	FILE002 empty file
//	FILE003 file could not be read or written
//	FILE004 no file provided
//	REQ001  malformed request parameter or body
//	PRS001  too many concurrent parses
//	PRS002  request cancelled
//	PRS003  request timed out
//	DB001   duplicate key
//	DB002   database unavailable
//	SNK001  no sink configured
//	ERR000  anything else; check the logs for the technical error

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgConfiguration = UserMessage{"The import configuration is invalid", "Contact support with this code", "CFG001"}
	msgUnknownSchema = UserMessage{"Unknown file type", "Check the schema name against /api/schemas", "CFG002"}
	msgCharset       = UserMessage{"Unsupported character set", "Use utf-8, latin1 or windows-1252", "CFG003"}
	msgInvalidRows   = UserMessage{"Some rows failed validation", "Download failed rows and correct them", "VAL001"}
	msgTooManyErrors = UserMessage{"Too many invalid rows, the file was not processed", "Fix the reported rows and upload again", "VAL002"}
	msgEmptyFile     = UserMessage{"The uploaded file is empty", "Upload a file with a header line", "FILE002"}
	msgIO            = UserMessage{"The file could not be read", "Check the file and try again", "FILE003"}
	msgBusy          = UserMessage{"System busy: too many files being processed", "Please wait a moment and try again", "PRS001"}
	msgCancelled     = UserMessage{"Request was cancelled", "Please try again", "PRS002"}
	msgTimeout       = UserMessage{"Request timed out", "Try a smaller file or try again later", "PRS003"}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted when no typed match applies. Specific patterns
// come before general ones.
var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{"File too large", "Split the file into smaller chunks", "FILE001"}},
	{"file too large", UserMessage{"File too large", "Split the file into smaller chunks", "FILE001"}},
	{"no file provided", UserMessage{"No file was sent", "Attach a CSV file to the request", "FILE004"}},
	{"invalid parameter", UserMessage{"The request is malformed", "Check the query parameters and request body", "REQ001"}},
	{"duplicate key", UserMessage{"A record with this key already exists", "Download failed rows to review duplicates", "DB001"}},
	{"unique constraint", UserMessage{"A record with this key already exists", "Check for duplicate entries in your CSV", "DB001"}},
	{"connection refused", UserMessage{"Unable to reach the database", "Please try again in a few moments", "DB002"}},
	{"no sink configured", UserMessage{"Importing is not enabled on this server", "Use /api/parse or configure SINK_DRIVER", "SNK001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		cfgErr   *ConfigurationError
		exceeded *ErrorsExceededError
		rowErr   *RowError
		ioErr    *IOError
	)
	switch {
	case errors.As(err, &exceeded):
		return msgTooManyErrors
	case errors.As(err, &rowErr):
		return msgInvalidRows
	case errors.Is(err, ErrUnknownSchema):
		return msgUnknownSchema
	case errors.Is(err, ErrEmptyInput):
		return msgEmptyFile
	case errors.Is(err, ErrTooManyParses):
		return msgBusy
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &cfgErr):
		if cfgErr.Op == "charset" {
			return msgCharset
		}
		return msgConfiguration
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.As(err, &ioErr) {
		return msgIO
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
