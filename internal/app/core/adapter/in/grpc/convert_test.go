package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-wallet-ledger/api/ledgerrpc"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{domain.ErrAmountMustBePositive, codes.InvalidArgument},
		{domain.NewFieldError("page", "bad"), codes.InvalidArgument},
		{domain.ErrSelfTransfer, codes.InvalidArgument},
		{domain.ErrCardNotFound, codes.NotFound},
		{domain.ErrInsufficientBalance, codes.FailedPrecondition},
		{domain.ErrOperationIDReused, codes.AlreadyExists},
		{&domain.ConsistencyError{UserID: 1}, codes.DataLoss},
		{fmt.Errorf("post: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{errors.New("connection refused"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(toStatus(tt.err)))
		})
	}
	assert.NoError(t, toStatus(nil))

	st := status.Convert(toStatus(errors.New("dial tcp 10.0.0.1: secret")))
	assert.Equal(t, "internal error", st.Message())
}

func TestParseRefID(t *testing.T) {
	id, err := parseRefID("")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	want := uuid.New()
	id, err = parseRefID(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, id)

	_, err = parseRefID("not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestToHistoryFilterDefaults(t *testing.T) {
	f, err := toHistoryFilter(&ledgerrpc.HistoryRequest{UserID: 1}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPageRequest(), f.Page)
	assert.Equal(t, domain.DefaultSort(), f.Sort)
	assert.Nil(t, f.StartDate)
	assert.False(t, f.AmountMin.Valid)
}

func TestToHistoryFilter(t *testing.T) {
	page, limit, pagination := 2, 5, false
	f, err := toHistoryFilter(&ledgerrpc.HistoryRequest{
		UserID:     1,
		Types:      []string{"deposit", "TRANSFER"},
		Directions: []string{"income"},
		Recipients: []int64{2},
		AmountMin:  "1.5",
		StartDate:  "2024-03-01",
		Page:       &page,
		Limit:      &limit,
		Pagination: &pagination,
		Sort: []ledgerrpc.SortSpec{
			{Field: "amount", Order: "desc"},
			{Field: "createdAt", Order: float64(1)},
		},
	}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []domain.OperationType{domain.OperationTypeDeposit, domain.OperationTypeTransfer}, f.Types)
	assert.Equal(t, []domain.Direction{domain.DirectionIncome}, f.Directions)
	assert.True(t, f.AmountMin.Decimal.Equal(decimal.RequireFromString("1.5")))
	require.NotNil(t, f.StartDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
	assert.Equal(t, domain.PageRequest{Page: 2, Limit: 5, Pagination: false}, f.Page)
	assert.Equal(t, domain.Sort{
		{Field: domain.SortByAmount, Order: domain.Descending},
		{Field: domain.SortByCreatedAt, Order: domain.Ascending},
	}, f.Sort)
}

func TestToHistoryFilterDatesInReportLocation(t *testing.T) {
	newYork := time.FixedZone("UTC-4", -4*60*60)
	f, err := toHistoryFilter(&ledgerrpc.HistoryRequest{
		UserID:    1,
		StartDate: "2024-05-01",
		EndDate:   "2024-05-01T10:00:00Z",
	}, newYork)
	require.NoError(t, err)
	require.NotNil(t, f.StartDate)
	require.NotNil(t, f.EndDate)
	assert.True(t, f.StartDate.Equal(time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC)))
	// 帶時區的字串保留原本的時刻
	assert.True(t, f.EndDate.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestToHistoryFilterCollectsErrors(t *testing.T) {
	_, err := toHistoryFilter(&ledgerrpc.HistoryRequest{
		Types:      []string{"refund"},
		Directions: []string{"up"},
		AmountMax:  "lots",
		EndDate:    "tomorrow",
		Sort:       []ledgerrpc.SortSpec{{Field: "amount", Order: 0}},
	}, time.UTC)
	require.Error(t, err)
	var errs domain.ValidationErrors
	require.ErrorAs(t, err, &errs)

	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"type", "direction", "amountMax", "endDate", "sort"}, fields)
	assert.Equal(t, codes.InvalidArgument, status.Code(toStatus(err)))
}
