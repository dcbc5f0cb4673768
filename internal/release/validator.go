package release

// validator.go checks a submitted release batch before anything is mutated.
//
// Every request is checked and every problem is collected so the caller can
// report them all at once. Requests are evaluated in submission order against
// a running remaining quantity per line, so two requests for the same line
// cannot together exceed what is left.

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks requests against order. On success it returns the validated
// batch in submission order. On failure it returns ValidationErrors and no
// validated requests; the order is never modified.
func Validate(order *BlanketOrder, requests []ReleaseRequest) ([]ValidatedRequest, error) {
	var errs ValidationErrors
	validated := make([]ValidatedRequest, 0, len(requests))

	// running remaining quantity per line within this batch
	remaining := make(map[string]decimal.Decimal, len(order.Lines))
	for _, l := range order.Lines {
		remaining[l.ID] = l.CurrentRemaining()
	}

	for i, req := range requests {
		left, ok := remaining[req.LineID]
		if !ok {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownLine,
				Index:   i,
				LineID:  req.LineID,
				Message: fmt.Sprintf("line %q is not part of this order", req.LineID),
			})
			continue
		}

		if !req.RequestedQuantity.Valid || !req.RequestedQuantity.Decimal.IsPositive() {
			errs = append(errs, ValidationError{
				Code:    CodeMissingOrInvalidQuantity,
				Index:   i,
				LineID:  req.LineID,
				Message: "Please fill up quantity.",
			})
			continue
		}

		qty := req.RequestedQuantity.Decimal
		if qty.GreaterThan(left) {
			errs = append(errs, ValidationError{
				Code:    CodeExceedsRemaining,
				Index:   i,
				LineID:  req.LineID,
				Message: fmt.Sprintf("Quantity %s is greater than remaining quantity %s.", qty, left),
			})
			continue
		}

		remaining[req.LineID] = left.Sub(qty)
		validated = append(validated, ValidatedRequest{
			LineID:    req.LineID,
			Quantity:  qty,
			UnitPrice: req.UnitPriceOverride,
		})
	}

	if len(validated) == 0 {
		errs = append(errs, ValidationError{
			Code:    CodeEmptySelection,
			Index:   -1,
			Message: "Please select at least one item from the transaction.",
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return validated, nil
}
