package core

import (
	"context"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/shopspring/decimal"
)

// FormLine is one row of the release form.
type FormLine struct {
	LineID            string          `json:"lineId"`
	ItemID            string          `json:"itemId"`
	ItemName          string          `json:"itemName"`
	Unit              string          `json:"unit"`
	OrderedQuantity   decimal.Decimal `json:"orderedQuantity"`
	ReleasedQuantity  decimal.Decimal `json:"releasedQuantity"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	// Quantity pre-fills the editable field with the current remaining.
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

// ReleaseForm is the data behind the release screen of a blanket order.
type ReleaseForm struct {
	OrderID    string         `json:"orderId"`
	Number     string         `json:"number,omitempty"`
	Header     release.Header `json:"header"`
	Status     release.Status `json:"status"`
	Releasable bool           `json:"releasable"`
	Lines      []FormLine     `json:"lines"`
}

// ContractLine is one priced row of the contract document.
type ContractLine struct {
	ItemName string `json:"itemName"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	Price    string `json:"price"`
}

// Contract is the data the contract document is rendered from.
type Contract struct {
	OrderID string         `json:"orderId"`
	Number  string         `json:"number,omitempty"`
	Header  release.Header `json:"header"`
	Lines   []ContractLine `json:"lines"`
}

// ReleaseForm loads an order and shapes it for the release screen. Orders
// that are fully released are returned with Releasable set to false.
func (s *Service) ReleaseForm(ctx context.Context, orderID string) (*ReleaseForm, error) {
	order, err := s.store.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status := release.DeriveStatus(order.Lines)
	form := &ReleaseForm{
		OrderID:    order.ID,
		Number:     order.Number,
		Header:     order.Header,
		Status:     status,
		Releasable: status != release.StatusComplete,
		Lines:      make([]FormLine, len(order.Lines)),
	}

	for i, l := range order.Lines {
		remaining := l.CurrentRemaining()
		form.Lines[i] = FormLine{
			LineID:            l.ID,
			ItemID:            l.Item.ID,
			ItemName:          l.Item.Name,
			Unit:              l.UnitOfMeasure,
			OrderedQuantity:   l.OrderedQuantity,
			ReleasedQuantity:  l.ReleasedQuantity,
			RemainingQuantity: remaining,
			Quantity:          remaining,
			UnitPrice:         l.UnitPrice,
			Amount:            remaining.Mul(l.UnitPrice),
		}
	}
	return form, nil
}

// Contract loads an order and shapes it for the contract document.
// Prices are fixed to two decimals.
func (s *Service) Contract(ctx context.Context, orderID string) (*Contract, error) {
	order, err := s.store.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	c := &Contract{
		OrderID: order.ID,
		Number:  order.Number,
		Header:  order.Header,
		Lines:   make([]ContractLine, len(order.Lines)),
	}
	for i, l := range order.Lines {
		c.Lines[i] = ContractLine{
			ItemName: l.Item.Name,
			Quantity: l.OrderedQuantity.String(),
			Unit:     l.UnitOfMeasure,
			Price:    l.UnitPrice.StringFixed(2),
		}
	}
	return c, nil
}
