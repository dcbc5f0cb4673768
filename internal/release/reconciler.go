package release

// Apply moves each validated quantity from remaining to released, in the
// order given, then re-derives the order status.
//
// Applying the same batch twice releases twice; replay protection belongs to
// the caller.
//
// If a request names a line the order no longer has, Apply stops and returns
// a *StaleLineError together with the result so far. Lines already updated
// stay updated; rolling them back is the caller's job.
func Apply(order *BlanketOrder, requests []ValidatedRequest) (ReconciliationResult, error) {
	result := ReconciliationResult{
		Order: order,
		Lines: make([]ChildLine, 0, len(requests)),
	}

	for _, req := range requests {
		line := order.Line(req.LineID)
		if line == nil {
			order.Status = DeriveStatus(order.Lines)
			return result, &StaleLineError{OrderID: order.ID, LineID: req.LineID}
		}

		line.release(req.Quantity)

		price := line.UnitPrice
		if req.UnitPrice.Valid {
			price = req.UnitPrice.Decimal
		}
		result.Lines = append(result.Lines, ChildLine{
			LineID:    line.ID,
			Item:      line.Item,
			Unit:      line.UnitOfMeasure,
			Quantity:  req.Quantity,
			UnitPrice: price,
		})
		result.Applied++
	}

	order.Status = DeriveStatus(order.Lines)
	return result, nil
}
