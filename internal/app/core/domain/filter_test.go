package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortOrder(t *testing.T) {
	valid := map[any]SortOrder{
		1:           Ascending,
		-1:          Descending,
		int64(-1):   Descending,
		float64(1):  Ascending,
		"asc":       Ascending,
		"DESC":      Descending,
		Descending:  Descending,
		int32(1):    Ascending,
		float64(-1): Descending,
	}
	for in, want := range valid {
		got, err := ParseSortOrder(in)
		require.NoError(t, err, "%v", in)
		assert.Equal(t, want, got)
	}

	for _, in := range []any{0, 2, 0.5, "up", nil, true} {
		_, err := ParseSortOrder(in)
		assert.ErrorIs(t, err, ErrValidation, "%v", in)
	}
}

func TestSortValidate(t *testing.T) {
	assert.NoError(t, DefaultSort().Validate())
	assert.ErrorIs(t, Sort{}.Validate(), ErrValidation)
	assert.ErrorIs(t, Sort{{Field: "balance", Order: Ascending}}.Validate(), ErrValidation)
	assert.ErrorIs(t, Sort{{Field: SortByAmount, Order: Ascending}, {Field: SortByAmount, Order: Descending}}.Validate(), ErrValidation)
	assert.ErrorIs(t, Sort{{Field: SortByAmount, Order: 0}}.Validate(), ErrValidation)
}

func TestPageRequestValidate(t *testing.T) {
	assert.NoError(t, DefaultPageRequest().Validate())

	err := PageRequest{Page: 0, Limit: 0, Pagination: true}.Validate()
	require.Error(t, err)
	errs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, errs, 2)
}

func TestNewDayWindow(t *testing.T) {
	now := time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

	w, err := NewDayWindow(nil, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, Epoch, w.Start)
	assert.Equal(t, time.Date(2024, 5, 20, 23, 59, 59, 999999999, time.UTC), w.End)

	start := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 3, 1, 0, 0, 0, time.UTC)
	w, err = NewDayWindow(&start, &end, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.True(t, w.Contains(time.Date(2024, 5, 3, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)))

	_, err = NewDayWindow(&end, &start, now, time.UTC)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "endDate", fe.Field)
}

func TestNewDayWindowSameDay(t *testing.T) {
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w, err := NewDayWindow(&day, &day, day, time.UTC)
	require.NoError(t, err)
	assert.True(t, w.Contains(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC)))
}

func TestNewDayWindowLocation(t *testing.T) {
	taipei := time.FixedZone("UTC+8", 8*60*60)
	// 2024-05-01 20:00 UTC 在 UTC+8 已是 05-02
	at := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	w, err := NewDayWindow(&at, &at, at, taipei)
	require.NoError(t, err)
	assert.True(t, w.Start.Equal(time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)))
}

func TestNewDayWindowWestOfUTC(t *testing.T) {
	newYork := time.FixedZone("UTC-4", -4*60*60)
	day, err := ParseDate("startDate", "2024-05-01", newYork)
	require.NoError(t, err)
	w, err := NewDayWindow(day, day, *day, newYork)
	require.NoError(t, err)
	assert.True(t, w.Start.Equal(time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC)))
	assert.True(t, w.End.Equal(time.Date(2024, 5, 2, 3, 59, 59, 999999999, time.UTC)))
	assert.Equal(t, 1, w.Start.In(newYork).Day())
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("startDate", "", nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, s := range []string{"2024-05-01", "2024-05-01T10:00:00Z", "2024-05-01 10:00:00", "2024-05-01T10:00:00.123+08:00"} {
		got, err := ParseDate("startDate", s, time.UTC)
		require.NoError(t, err, s)
		require.NotNil(t, got)
	}

	_, err = ParseDate("endDate", "yesterday", time.UTC)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "endDate", fe.Field)
}

func TestHistoryFilterValidate(t *testing.T) {
	f := NewHistoryFilter()
	assert.NoError(t, f.Validate())

	f.Types = []OperationType{"refund"}
	f.Directions = []Direction{"sideways"}
	f.AmountMin = decimal.NewNullDecimal(decimal.NewFromInt(50))
	f.AmountMax = decimal.NewNullDecimal(decimal.NewFromInt(10))
	f.Page.Limit = 0

	err := f.Validate()
	require.Error(t, err)
	fields := map[string]bool{}
	for _, fe := range err.(ValidationErrors) {
		fields[fe.Field] = true
	}
	assert.Equal(t, map[string]bool{"type": true, "direction": true, "amountMax": true, "limit": true}, fields)
}

func TestOperationQueryMatch(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	transfer := Operation{Type: OperationTypeTransfer, UserID: 1, RecipientID: 2, Amount: decimal.NewFromInt(30), Description: "Dinner split", CreatedAt: at}
	deposit := Operation{Type: OperationTypeDeposit, UserID: 1, CardID: 5, Amount: decimal.NewFromInt(100), Description: "salary", CreatedAt: at}

	tests := []struct {
		name string
		q    OperationQuery
		op   Operation
		want bool
	}{
		{"sender", OperationQuery{UserID: 1}, transfer, true},
		{"recipient", OperationQuery{UserID: 2}, transfer, true},
		{"stranger", OperationQuery{UserID: 3}, transfer, false},
		{"deposit is not visible to others", OperationQuery{UserID: 2}, deposit, false},
		{"type", OperationQuery{UserID: 1, Types: []OperationType{OperationTypeWithdraw}}, deposit, false},
		{"card", OperationQuery{UserID: 1, Cards: []int64{5}}, deposit, true},
		{"card excludes transfer", OperationQuery{UserID: 1, Cards: []int64{5}}, transfer, false},
		{"recipient filter", OperationQuery{UserID: 1, Recipients: []int64{2}}, transfer, true},
		{"description case insensitive", OperationQuery{UserID: 1, Description: "DINNER"}, transfer, true},
		{"amount min", OperationQuery{UserID: 1, AmountMin: decimal.NewNullDecimal(decimal.NewFromInt(31))}, transfer, false},
		{"amount max inclusive", OperationQuery{UserID: 1, AmountMax: decimal.NewNullDecimal(decimal.NewFromInt(30))}, transfer, true},
		{"window inclusive", OperationQuery{UserID: 1, From: at, To: at}, transfer, true},
		{"before exclusive", OperationQuery{UserID: 1, Before: at}, transfer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Match(&tt.op))
		})
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", amount.String())

	for _, s := range []string{"", "abc", "NaN", "Infinity"} {
		_, err := ParseAmount(s)
		assert.ErrorIs(t, err, ErrInvalidAmount, s)
	}
	for _, s := range []string{"0", "-3"} {
		_, err := ParseAmount(s)
		assert.ErrorIs(t, err, ErrAmountMustBePositive, s)
	}

	for _, s := range []string{"0.00001", "1.23456"} {
		_, err := ParseAmount(s)
		assert.ErrorIs(t, err, ErrAmountPrecision, s)
		assert.ErrorIs(t, err, ErrValidation, s)
	}
	// 尾端的 0 不算多出來的精度
	amount, err = ParseAmount("1.50000")
	require.NoError(t, err)
	assert.Equal(t, "1.5", amount.String())
	_, err = ParseAmount("0.0001")
	assert.NoError(t, err)
}
