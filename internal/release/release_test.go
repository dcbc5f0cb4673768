package release

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func qty(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func assertDec(t *testing.T, want string, got decimal.Decimal, context ...string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s %v", want, got, context)
}

func line(id, ordered, released string, remaining *string) LineItem {
	l := LineItem{
		ID:               id,
		Item:             ItemRef{ID: "item-" + id, Name: "Item " + id},
		UnitOfMeasure:    "Gallon",
		OrderedQuantity:  dec(ordered),
		ReleasedQuantity: dec(released),
		UnitPrice:        dec("2.50"),
	}
	if remaining != nil {
		l.RemainingQuantity = qty(*remaining)
	}
	return l
}

func ptr(s string) *string { return &s }

// orderAB is the two-line order used by the end-to-end scenarios:
// A(ordered=5, remaining=5) and B(ordered=10, released=7, remaining=3).
func orderAB() *BlanketOrder {
	return &BlanketOrder{
		ID: "bso-1",
		Lines: []LineItem{
			line("A", "5", "0", ptr("5")),
			line("B", "10", "7", ptr("3")),
		},
		Status: StatusPartial,
	}
}

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	require.Error(t, err)
	var errs ValidationErrors
	require.True(t, errors.As(err, &errs), "expected ValidationErrors, got %T: %v", err, err)
	return errs
}

// ---------------------------------------------------------------------------
// Quantity ledger
// ---------------------------------------------------------------------------

func TestCurrentRemaining_FallsBackToOrdered(t *testing.T) {
	l := line("A", "12", "0", nil)
	assertDec(t, "12", l.CurrentRemaining())

	l.RemainingQuantity = qty("0")
	assertDec(t, "0", l.CurrentRemaining())
}

func TestCheckLine(t *testing.T) {
	tests := []struct {
		name    string
		line    LineItem
		wantErr bool
	}{
		{"never released", line("A", "10", "0", nil), false},
		{"consistent", line("A", "10", "4", ptr("6")), false},
		{"fully released", line("A", "10", "10", ptr("0")), false},
		{"mismatch", line("A", "10", "4", ptr("5")), true},
		{"negative remaining", line("A", "10", "12", ptr("-2")), true},
		{"negative released", line("A", "10", "-1", ptr("11")), true},
		{"released but remaining unset", line("A", "10", "3", nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Status deriver
// ---------------------------------------------------------------------------

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []LineItem
		want  Status
	}{
		{"no lines", nil, StatusPartial},
		{"all zero remaining", []LineItem{line("A", "5", "5", ptr("0")), line("B", "2", "2", ptr("0"))}, StatusComplete},
		{"zero ordered never released", []LineItem{line("A", "0", "0", nil)}, StatusComplete},
		{"one line open", []LineItem{line("A", "5", "5", ptr("0")), line("B", "2", "1", ptr("1"))}, StatusPartial},
		{"never released", []LineItem{line("A", "5", "0", nil)}, StatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.lines))
		})
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusComplete})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"complete"}`, string(b))

	for in, want := range map[string]Status{"partial": StatusPartial, "2": StatusPartial, "1": StatusComplete} {
		got, err := ParseStatus(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err = ParseStatus("closed")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

func TestValidate_Accepts(t *testing.T) {
	order := orderAB()
	got, err := Validate(order, []ReleaseRequest{
		{LineID: "A", RequestedQuantity: qty("2")},
		{LineID: "B", RequestedQuantity: qty("3"), UnitPriceOverride: qty("9.99")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "A", got[0].LineID)
	assertDec(t, "2", got[0].Quantity)
	assert.False(t, got[0].UnitPrice.Valid)

	assert.Equal(t, "B", got[1].LineID)
	assert.True(t, got[1].UnitPrice.Valid)
	assertDec(t, "9.99", got[1].UnitPrice.Decimal)

	// validation never mutates
	assertDec(t, "5", order.Lines[0].CurrentRemaining())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		requests []ReleaseRequest
		want     []Code
	}{
		{"zero quantity", []ReleaseRequest{{LineID: "A", RequestedQuantity: qty("0")}}, []Code{CodeMissingOrInvalidQuantity}},
		{"negative quantity", []ReleaseRequest{{LineID: "A", RequestedQuantity: qty("-1")}}, []Code{CodeMissingOrInvalidQuantity}},
		{"missing quantity", []ReleaseRequest{{LineID: "A"}}, []Code{CodeMissingOrInvalidQuantity}},
		{"exceeds remaining", []ReleaseRequest{{LineID: "B", RequestedQuantity: qty("3.01")}}, []Code{CodeExceedsRemaining}},
		{"unknown line", []ReleaseRequest{{LineID: "Z", RequestedQuantity: qty("1")}}, []Code{CodeUnknownLine}},
		{"empty batch", nil, []Code{CodeEmptySelection}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(orderAB(), tt.requests)
			assert.Nil(t, got)
			errs := validationErrors(t, err)
			for _, code := range tt.want {
				assert.True(t, errs.Has(code), "expected %s in %v", code, errs)
			}
		})
	}
}

func TestValidate_EmptyBatchIsOnlyEmptySelection(t *testing.T) {
	_, err := Validate(orderAB(), []ReleaseRequest{})
	errs := validationErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeEmptySelection, errs[0].Code)
	assert.Equal(t, -1, errs[0].Index)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	_, err := Validate(orderAB(), []ReleaseRequest{
		{LineID: "A", RequestedQuantity: qty("1")},
		{LineID: "B", RequestedQuantity: qty("4")},
		{LineID: "Z", RequestedQuantity: qty("1")},
		{LineID: "A"},
	})
	errs := validationErrors(t, err)

	require.Len(t, errs, 3)
	assert.Equal(t, CodeExceedsRemaining, errs[0].Code)
	assert.Equal(t, 1, errs[0].Index)
	assert.Equal(t, CodeUnknownLine, errs[1].Code)
	assert.Equal(t, 2, errs[1].Index)
	assert.Equal(t, CodeMissingOrInvalidQuantity, errs[2].Code)
	assert.Equal(t, 3, errs[2].Index)
	assert.False(t, errs.Has(CodeEmptySelection), "one request was valid")
}

func TestValidate_SameLineIsSequential(t *testing.T) {
	order := &BlanketOrder{ID: "bso-2", Lines: []LineItem{line("L", "10", "0", nil)}}

	_, err := Validate(order, []ReleaseRequest{
		{LineID: "L", RequestedQuantity: qty("6")},
		{LineID: "L", RequestedQuantity: qty("6")},
	})
	errs := validationErrors(t, err)

	require.Len(t, errs, 1)
	assert.Equal(t, CodeExceedsRemaining, errs[0].Code)
	assert.Equal(t, 1, errs[0].Index)

	got, err := Validate(order, []ReleaseRequest{
		{LineID: "L", RequestedQuantity: qty("6")},
		{LineID: "L", RequestedQuantity: qty("4")},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Code: CodeExceedsRemaining, Index: 0, Message: "too much"},
		{Code: CodeEmptySelection, Index: -1, Message: "nothing"},
	}
	assert.Equal(t, "release rejected: REL003: line 1: too much; REL004: nothing", errs.Error())
}

// ---------------------------------------------------------------------------
// Reconciler
// ---------------------------------------------------------------------------

func releaseAll(t *testing.T, order *BlanketOrder, reqs ...ReleaseRequest) ReconciliationResult {
	t.Helper()
	validated, err := Validate(order, reqs)
	require.NoError(t, err)
	res, err := Apply(order, validated)
	require.NoError(t, err)
	require.NoError(t, CheckLedger(order))
	return res
}

func TestApply_CompletesOrder(t *testing.T) {
	order := orderAB()
	res := releaseAll(t, order,
		ReleaseRequest{LineID: "A", RequestedQuantity: qty("5")},
		ReleaseRequest{LineID: "B", RequestedQuantity: qty("3")},
	)

	a, b := order.Line("A"), order.Line("B")
	assertDec(t, "5", a.ReleasedQuantity)
	assertDec(t, "0", a.CurrentRemaining())
	assertDec(t, "10", b.ReleasedQuantity)
	assertDec(t, "0", b.CurrentRemaining())
	assert.Equal(t, StatusComplete, order.Status)

	assert.Equal(t, 2, res.Applied)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, "item-A", res.Lines[0].Item.ID)
	assertDec(t, "5", res.Lines[0].Quantity)
	assertDec(t, "2.50", res.Lines[0].UnitPrice)
	assertDec(t, "12.5", res.Lines[0].Amount())
	assert.Equal(t, "Gallon", res.Lines[1].Unit)
}

func TestApply_PartialRelease(t *testing.T) {
	order := orderAB()
	releaseAll(t, order, ReleaseRequest{LineID: "A", RequestedQuantity: qty("5")})

	assertDec(t, "0", order.Line("A").CurrentRemaining())
	assertDec(t, "3", order.Line("B").CurrentRemaining())
	assertDec(t, "7", order.Line("B").ReleasedQuantity)
	assert.Equal(t, StatusPartial, order.Status)
}

func TestApply_NotIdempotent(t *testing.T) {
	order := &BlanketOrder{ID: "bso-3", Lines: []LineItem{line("L", "10", "0", nil)}}
	batch := []ValidatedRequest{{LineID: "L", Quantity: dec("3")}}

	_, err := Apply(order, batch)
	require.NoError(t, err)
	_, err = Apply(order, batch)
	require.NoError(t, err)

	l := order.Line("L")
	assertDec(t, "6", l.ReleasedQuantity)
	assertDec(t, "4", l.CurrentRemaining())
	assert.Equal(t, StatusPartial, order.Status)
}

func TestApply_PriceOverride(t *testing.T) {
	order := orderAB()
	res := releaseAll(t, order, ReleaseRequest{LineID: "A", RequestedQuantity: qty("1"), UnitPriceOverride: qty("3.75")})
	assertDec(t, "3.75", res.Lines[0].UnitPrice)
	assertDec(t, "2.50", order.Line("A").UnitPrice, "override must not touch the blanket line")
}

func TestApply_StaleLineStopsBatch(t *testing.T) {
	order := orderAB()
	validated, err := Validate(order, []ReleaseRequest{
		{LineID: "A", RequestedQuantity: qty("2")},
		{LineID: "B", RequestedQuantity: qty("1")},
		{LineID: "A", RequestedQuantity: qty("1")},
	})
	require.NoError(t, err)

	// line B disappears between validation and reconciliation
	order.Lines = order.Lines[:1]

	res, err := Apply(order, validated)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleLine))

	var stale *StaleLineError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, "B", stale.LineID)
	assert.Equal(t, "bso-1", stale.OrderID)

	assert.Equal(t, 1, res.Applied)
	assertDec(t, "2", order.Line("A").ReleasedQuantity, "third request must not be applied")
}

func TestClone_IsIndependent(t *testing.T) {
	order := orderAB()
	c := order.Clone()
	c.Lines[0].ReleasedQuantity = dec("99")
	assertDec(t, "0", order.Lines[0].ReleasedQuantity)
}
