package release

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a release error category for support reference.
type Code string

const (
	CodeUnknownLine              Code = "REL001"
	CodeMissingOrInvalidQuantity Code = "REL002"
	CodeExceedsRemaining         Code = "REL003"
	CodeEmptySelection           Code = "REL004"
	CodeStaleLine                Code = "REL005"
	CodeUnknownUnit              Code = "REL006"
)

// ErrStaleLine matches any *StaleLineError via errors.Is.
var ErrStaleLine = errors.New("stale line")

// ErrUnknownUnit matches any *UnknownUnitError via errors.Is.
var ErrUnknownUnit = errors.New("unknown unit")

// ValidationError is a single problem found in a release batch.
// Index is the zero-based position of the offending request, or -1 for
// batch-level problems.
type ValidationError struct {
	Code    Code   `json:"code"`
	Index   int    `json:"index"`
	LineID  string `json:"lineId,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: line %d: %s", e.Code, e.Index+1, e.Message)
}

// ValidationErrors is the full list of problems in a rejected batch.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "release rejected: " + strings.Join(msgs, "; ")
}

// Has reports whether any error carries the given code.
func (es ValidationErrors) Has(code Code) bool {
	for _, e := range es {
		if e.Code == code {
			return true
		}
	}
	return false
}

// StaleLineError is returned when a validated line can no longer be found or updated.
type StaleLineError struct {
	OrderID string
	LineID  string
}

func (e *StaleLineError) Error() string {
	return fmt.Sprintf("%s: line %s of order %s no longer exists", CodeStaleLine, e.LineID, e.OrderID)
}

func (e *StaleLineError) Is(target error) bool { return target == ErrStaleLine }

// UnknownUnitError is returned when a unit label has no canonical mapping.
type UnknownUnitError struct {
	Label string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("%s: unit of measure %q has no canonical mapping", CodeUnknownUnit, e.Label)
}

func (e *UnknownUnitError) Is(target error) bool { return target == ErrUnknownUnit }
