package release

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrentRemaining returns the line's remaining quantity, falling back to the
// ordered quantity for a line that has never been released.
func (l LineItem) CurrentRemaining() decimal.Decimal {
	if l.RemainingQuantity.Valid {
		return l.RemainingQuantity.Decimal
	}
	return l.OrderedQuantity
}

// Amount returns ordered quantity times unit price.
func (l LineItem) Amount() decimal.Decimal {
	return l.OrderedQuantity.Mul(l.UnitPrice)
}

// release moves qty from remaining to released on the line.
func (l *LineItem) release(qty decimal.Decimal) {
	remaining := l.CurrentRemaining()
	l.ReleasedQuantity = l.ReleasedQuantity.Add(qty)
	l.RemainingQuantity = decimal.NewNullDecimal(remaining.Sub(qty))
}

// CheckLine verifies that remaining == ordered - released and that neither is negative.
func CheckLine(l LineItem) error {
	remaining := l.CurrentRemaining()
	switch {
	case l.OrderedQuantity.IsNegative():
		return fmt.Errorf("line %s: ordered quantity %s is negative", l.ID, l.OrderedQuantity)
	case l.ReleasedQuantity.IsNegative():
		return fmt.Errorf("line %s: released quantity %s is negative", l.ID, l.ReleasedQuantity)
	case remaining.IsNegative():
		return fmt.Errorf("line %s: remaining quantity %s is negative", l.ID, remaining)
	case !remaining.Equal(l.OrderedQuantity.Sub(l.ReleasedQuantity)):
		return fmt.Errorf("line %s: remaining %s != ordered %s - released %s",
			l.ID, remaining, l.OrderedQuantity, l.ReleasedQuantity)
	}
	return nil
}

// CheckLedger runs CheckLine over every line and returns the first violation.
func CheckLedger(o *BlanketOrder) error {
	for _, l := range o.Lines {
		if err := CheckLine(l); err != nil {
			return err
		}
	}
	return nil
}
