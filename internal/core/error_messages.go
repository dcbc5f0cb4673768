package core

// # Error Codes Reference
//
// User-facing error messages carry a code that users can quote to support
// staff for faster diagnosis.
//
// # Release Errors (REL001-REL099)
//
//	REL001 - Unknown line: The selected line is not on this order
//	REL002 - Missing quantity: Please fill up quantity.
//	REL003 - Exceeds remaining: Quantity is more than what is left to release
//	REL004 - Nothing selected: Please select at least one item
//	REL005 - Stale line: A line changed while the release was running
//	REL006 - Unknown unit: The line's unit has no sales order mapping
//	REL007 - Order not found: The blanket order does not exist
//	REL008 - Release in progress: Another release holds this order
//	REL009 - System busy: Too many releases in progress
//
// REL001-REL006 are raised by the release package and matched by type.
// The rest are matched by sentinel error.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB003 - Foreign key              Patterns: "violates foreign key"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//	DB008 - Serialization failure    Patterns: "could not serialize"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled       Patterns: "context canceled"
//	REQ002 - Request timeout         Patterns: "context deadline exceeded"
//	REQ003 - Malformed request       Patterns: "invalid request body"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the original
// technical error when users report ERR000.
//
// Patterns are matched case-insensitively using strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"errors"
	"strings"

	"github.com/JonMunkholm/bso/internal/lock"
	"github.com/JonMunkholm/bso/internal/release"
	"github.com/JonMunkholm/bso/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var releaseMessages = map[release.Code]UserMessage{
	release.CodeUnknownLine: {
		Message: "The selected line is not on this order",
		Action:  "Reload the order and select the line again",
		Code:    string(release.CodeUnknownLine),
	},
	release.CodeMissingOrInvalidQuantity: {
		Message: "Please fill up quantity.",
		Action:  "Enter a quantity greater than zero for each selected line",
		Code:    string(release.CodeMissingOrInvalidQuantity),
	},
	release.CodeExceedsRemaining: {
		Message: "Quantity is more than what is left to release",
		Action:  "Lower the quantity to at most the remaining quantity",
		Code:    string(release.CodeExceedsRemaining),
	},
	release.CodeEmptySelection: {
		Message: "Please select at least one item from the transaction.",
		Action:  "Select one or more lines to release",
		Code:    string(release.CodeEmptySelection),
	},
	release.CodeStaleLine: {
		Message: "The order changed while the release was running",
		Action:  "Reload the order and submit the release again",
		Code:    string(release.CodeStaleLine),
	},
	release.CodeUnknownUnit: {
		Message: "A line uses a unit with no sales order mapping",
		Action:  "Ask an administrator to add the unit to UNIT_CODES",
		Code:    string(release.CodeUnknownUnit),
	},
}

var (
	msgOrderNotFound = UserMessage{
		Message: "Blanket order not found",
		Action:  "Verify the order ID is correct",
		Code:    "REL007",
	}
	msgLockBusy = UserMessage{
		Message: "Another release is in progress for this order",
		Action:  "Please wait a moment and try again",
		Code:    "REL008",
	}
	msgTooManyReleases = UserMessage{
		Message: "System is busy processing other releases",
		Action:  "Please wait a moment and try again",
		Code:    "REL009",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB008)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Reload the order before releasing again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Verify the blanket order still exists",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "The order was updated by someone else",
			Action:  "Reload the order and try again",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ003)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Send a JSON body with a lines array",
			Code:    "REQ003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Release and store errors are matched by type; everything else by pattern.
// A rejected batch maps to its first problem.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := typedMessage(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// MapCode returns the message for a release error code.
func MapCode(code release.Code) UserMessage {
	if msg, ok := releaseMessages[code]; ok {
		return msg
	}
	return defaultMessage
}

func typedMessage(err error) (UserMessage, bool) {
	var verrs release.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return MapCode(verrs[0].Code), true
	}

	switch {
	case errors.Is(err, release.ErrStaleLine):
		return releaseMessages[release.CodeStaleLine], true
	case errors.Is(err, release.ErrUnknownUnit):
		return releaseMessages[release.CodeUnknownUnit], true
	case errors.Is(err, store.ErrOrderNotFound):
		return msgOrderNotFound, true
	case errors.Is(err, lock.ErrBusy):
		return msgLockBusy, true
	case errors.Is(err, ErrTooManyReleases):
		return msgTooManyReleases, true
	}
	return UserMessage{}, false
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
