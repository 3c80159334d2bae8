package mysql

import (
	"fmt"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// dryRunDB 只產生 SQL，不連線資料庫
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/ledger?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestOperationScope(t *testing.T) {
	db := dryRunDB(t)
	q := domain.OperationQuery{
		UserID:      1,
		From:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Types:       []domain.OperationType{domain.OperationTypeTransfer},
		Cards:       []int64{3},
		Description: "Rent_100%",
		AmountMax:   decimal.NewNullDecimal(decimal.NewFromInt(10)),
	}

	var rows []sqlOperation
	stmt := db.Scopes(operationScope(q)).Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "(user_id = ? OR (type = ? AND recipient_id = ?))")
	assert.Contains(t, sql, "created_at >= ?")
	assert.Contains(t, sql, "type IN (?)")
	assert.Contains(t, sql, "card_id IN (?)")
	assert.Contains(t, sql, "LOWER(description) LIKE ?")
	assert.Contains(t, sql, "amount <= ?")
	assert.NotContains(t, sql, "created_at <= ?")
	assert.Contains(t, stmt.Vars, `%rent\_100\%%`)
}

func TestSQLOperationRoundTrip(t *testing.T) {
	op := &domain.Operation{
		ID:          uuid.New(),
		Type:        domain.OperationTypeTransfer,
		UserID:      1,
		RecipientID: 2,
		Amount:      decimal.RequireFromString("12.3400"),
		Description: "rent",
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 123000, time.UTC),
	}
	row := newSQLOperation(op)
	assert.Nil(t, row.CardID)
	require.NotNil(t, row.RecipientID)
	row.ID = 42

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, op.ID, back.ID)
	assert.Equal(t, uint64(42), back.Sequence)
	assert.Equal(t, int64(2), back.RecipientID)
	assert.Zero(t, back.CardID)
	assert.True(t, op.Amount.Equal(back.Amount))
	assert.True(t, op.CreatedAt.Equal(back.CreatedAt))
}

func TestSQLUserToDomain(t *testing.T) {
	deleted := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := sqlUser{ID: 1, FirstName: "Alice", Balance: decimal.NewFromInt(5), DeletedAt: gorm.DeletedAt{Time: deleted, Valid: true}}
	a := u.toDomain()
	assert.False(t, a.Active())
	assert.Equal(t, "5", a.Balance.String())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&mysqldriver.MySQLError{Number: errDeadlock}))
	assert.True(t, retryable(fmt.Errorf("tx: %w", &mysqldriver.MySQLError{Number: errLockWaitTimeout})))
	assert.True(t, retryable(&mysqldriver.MySQLError{Number: errDuplicateEntry}))
	assert.False(t, retryable(&mysqldriver.MySQLError{Number: 1146}))
	assert.False(t, retryable(domain.ErrInsufficientBalance))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
