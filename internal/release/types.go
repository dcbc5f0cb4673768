package release

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the aggregate release state of a blanket order.
// Values match the list IDs used by the order record.
type Status int

const (
	StatusComplete Status = 1
	StatusPartial  Status = 2
)

// String returns the lowercase status label.
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status as its label.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts either the label or the numeric list ID.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStatus converts a stored label or list ID back to a Status.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "complete", "1":
		return StatusComplete, nil
	case "partial", "2":
		return StatusPartial, nil
	default:
		return 0, fmt.Errorf("unknown order status %q", v)
	}
}

// ItemRef references a catalog item.
type ItemRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LineItem is one row of a blanket order.
type LineItem struct {
	ID                string              `json:"id"`
	Item              ItemRef             `json:"item"`
	UnitOfMeasure     string              `json:"unitOfMeasure"`
	OrderedQuantity   decimal.Decimal     `json:"orderedQuantity"`
	ReleasedQuantity  decimal.Decimal     `json:"releasedQuantity"`
	RemainingQuantity decimal.NullDecimal `json:"remainingQuantity"`
	UnitPrice         decimal.Decimal     `json:"unitPrice"`
}

// Header carries the commercial terms a child order inherits from its blanket order.
// Reference fields hold external record IDs; empty means unset.
type Header struct {
	CustomerID          string     `json:"customerId"`
	CustomerName        string     `json:"customerName,omitempty"`
	SalesRepID          string     `json:"salesRepId,omitempty"`
	AccountManagerID    string     `json:"accountManagerId,omitempty"`
	TermsID             string     `json:"termsId,omitempty"`
	ShipConditionID     string     `json:"shipConditionId,omitempty"`
	IncotermID          string     `json:"incotermId,omitempty"`
	IncotermDescription string     `json:"incotermDescription,omitempty"`
	PaymentBasis        string     `json:"paymentBasis,omitempty"`
	PalletsRequiredID   string     `json:"palletsRequiredId,omitempty"`
	PackagingTypeID     string     `json:"packagingTypeId,omitempty"`
	DeliveryNotes       string     `json:"deliveryNotes,omitempty"`
	CustomerPO          string     `json:"customerPo,omitempty"`
	Memo                string     `json:"memo,omitempty"`
	DeliveryStart       *time.Time `json:"deliveryStart,omitempty"`
	DeliveryEnd         *time.Time `json:"deliveryEnd,omitempty"`
}

// BlanketOrder is a standing order whose lines are released over time.
// Status is derived by Apply and never set by callers.
type BlanketOrder struct {
	ID     string     `json:"id"`
	Number string     `json:"number,omitempty"`
	Header Header     `json:"header"`
	Lines  []LineItem `json:"lines"`
	Status Status     `json:"status"`
}

// Line returns a pointer to the line with the given ID, or nil.
func (o *BlanketOrder) Line(id string) *LineItem {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (o *BlanketOrder) Clone() *BlanketOrder {
	c := *o
	c.Lines = make([]LineItem, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}

// ReleaseRequest is one submitted line of a release batch.
type ReleaseRequest struct {
	LineID            string              `json:"lineId"`
	RequestedQuantity decimal.NullDecimal `json:"quantity"`
	UnitPriceOverride decimal.NullDecimal `json:"unitPrice"`
}

// ValidatedRequest is a request that passed validation against its order.
type ValidatedRequest struct {
	LineID    string
	Quantity  decimal.Decimal
	UnitPrice decimal.NullDecimal
}

// ChildLine is one line of the order generated by a release.
type ChildLine struct {
	LineID    string          `json:"lineId"`
	Item      ItemRef         `json:"item"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Amount returns quantity times unit price.
func (c ChildLine) Amount() decimal.Decimal {
	return c.Quantity.Mul(c.UnitPrice)
}

// ReconciliationResult is the outcome of applying a validated batch.
type ReconciliationResult struct {
	Order   *BlanketOrder
	Lines   []ChildLine
	Applied int
}
