package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
)

// 可重試的 MySQL 錯誤碼
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

// MySQLLedger 以 MySQL 交易實作的帳本
//
// 每筆分錄在一個 DB Transaction 內: 依 id 順序 SELECT ... FOR UPDATE 鎖定帳戶 (悲觀鎖)、
// 檢查餘額、更新餘額、寫入分錄。遇到死鎖或 ref_id 重複時整個 Transaction 重試，
// 重試時 ref_id 去重保證不會重複入帳。
type MySQLLedger struct {
	client     *mysql.Client
	maxRetries int
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		client:     client,
		maxRetries: 3,
	}
}

// PostOperation 以單一 DB Transaction 提交分錄
func (ledger *MySQLLedger) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	if !op.Type.Valid() {
		return nil, domain.ErrUnknownOperationType
	}
	if !op.Amount.IsPositive() {
		return nil, domain.ErrAmountMustBePositive
	}

	var posting *domain.Posting
	var err error
	for attempt := 0; attempt <= ledger.maxRetries; attempt++ {
		posting, err = ledger.postOnce(ctx, op)
		if err == nil || !retryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return posting, err
}

func (ledger *MySQLLedger) postOnce(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	var posting *domain.Posting
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先檢查是否有這筆分錄
		replayed, err := replayOperation(tx, op)
		if err != nil {
			return err
		}
		if replayed != nil {
			posting = replayed
			return nil
		}

		// 取得鎖定帳號 悲觀鎖，依 id 排序避免死鎖
		lockIDs := op.GetLockIDs()
		var users []sqlUser
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", lockIDs).
			Order("id").
			Find(&users).Error; err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		userMap := make(map[int64]*sqlUser, len(users))
		for i := range users {
			userMap[users[i].ID] = &users[i]
		}

		// 安全檢查：確保涉及的帳號都存在
		actor, ok := userMap[op.UserID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		var recipient *sqlUser
		if op.Type == domain.OperationTypeTransfer {
			if recipient, ok = userMap[op.RecipientID]; !ok {
				return domain.ErrRecipientNotFound
			}
		}

		// 依照 Type 執行業務邏輯，扣款的需檢查餘額
		switch op.Type {
		case domain.OperationTypeDeposit:
			actor.Balance = actor.Balance.Add(op.Amount)
		case domain.OperationTypeWithdraw:
			if actor.Balance.LessThan(op.Amount) {
				return domain.ErrInsufficientBalance
			}
			actor.Balance = actor.Balance.Sub(op.Amount)
		case domain.OperationTypeTransfer:
			if actor.Balance.LessThan(op.Amount) {
				return domain.ErrInsufficientBalance
			}
			actor.Balance = actor.Balance.Sub(op.Amount)
			recipient.Balance = recipient.Balance.Add(op.Amount)
		}

		// 更新資料庫
		for _, user := range users {
			if err := tx.Model(&sqlUser{}).
				Where("id = ?", user.ID).
				Update("balance", user.Balance).Error; err != nil {
				return fmt.Errorf("update balance of user %d: %w", user.ID, err)
			}
		}

		// 建立分錄
		row := newSQLOperation(op)
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert operation: %w", err)
		}
		stored, err := row.toDomain()
		if err != nil {
			return err
		}

		posting = &domain.Posting{
			Operation: stored,
			Balance:   actor.Balance,
		}
		if recipient != nil {
			posting.RecipientBalance = recipient.Balance
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posting, nil
}

// replayOperation 已有相同 ref_id 的分錄時回傳它與目前的餘額
func replayOperation(tx *gorm.DB, op *domain.Operation) (*domain.Posting, error) {
	var row sqlOperation
	err := tx.Where("ref_id = ?", op.ID[:]).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select operation by ref_id: %w", err)
	}
	stored, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if !stored.SamePayload(op) {
		return nil, domain.ErrOperationIDReused
	}

	posting := &domain.Posting{Operation: stored, Replayed: true}
	var users []sqlUser
	if err := tx.Unscoped().Where("id IN ?", stored.GetLockIDs()).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	for _, u := range users {
		if u.ID == stored.UserID {
			posting.Balance = u.Balance
		}
		if stored.Type == domain.OperationTypeTransfer && u.ID == stored.RecipientID {
			posting.RecipientBalance = u.Balance
		}
	}
	return posting, nil
}

func retryable(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	switch mysqlErr.Number {
	case errDeadlock, errLockWaitTimeout, errDuplicateEntry:
		return true
	}
	return false
}

// GetAccount 取得未刪除的帳戶
func (ledger *MySQLLedger) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	var user sqlUser
	err := ledger.client.DB().WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %d: %w", userID, err)
	}
	return user.toDomain(), nil
}

// FindAccounts 批次取得帳戶 (包含已刪除)
func (ledger *MySQLLedger) FindAccounts(ctx context.Context, ids []int64) (map[int64]*domain.Account, error) {
	var users []sqlUser
	if err := ledger.client.DB().WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	found := make(map[int64]*domain.Account, len(users))
	for i := range users {
		found[users[i].ID] = users[i].toDomain()
	}
	return found, nil
}

// ListOperations 依條件查詢分錄
func (ledger *MySQLLedger) ListOperations(ctx context.Context, q domain.OperationQuery) ([]domain.Operation, error) {
	return listOperations(ledger.client.DB().WithContext(ctx), q)
}

func listOperations(db *gorm.DB, q domain.OperationQuery) ([]domain.Operation, error) {
	var rows []sqlOperation
	if err := db.Scopes(operationScope(q)).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select operations (%s): %w", q, err)
	}
	ops := make([]domain.Operation, 0, len(rows))
	for i := range rows {
		op, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// operationScope 把查詢條件轉成 WHERE，條件之間為 AND
func operationScope(q domain.OperationQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("(user_id = ? OR (type = ? AND recipient_id = ?))", q.UserID, string(domain.OperationTypeTransfer), q.UserID)
		if !q.From.IsZero() {
			db = db.Where("created_at >= ?", q.From)
		}
		if !q.To.IsZero() {
			db = db.Where("created_at <= ?", q.To)
		}
		if !q.Before.IsZero() {
			db = db.Where("created_at < ?", q.Before)
		}
		if len(q.Types) > 0 {
			types := make([]string, len(q.Types))
			for i, t := range q.Types {
				types[i] = string(t)
			}
			db = db.Where("type IN ?", types)
		}
		if len(q.Recipients) > 0 {
			db = db.Where("recipient_id IN ?", q.Recipients)
		}
		if len(q.Cards) > 0 {
			db = db.Where("card_id IN ?", q.Cards)
		}
		if q.Description != "" {
			db = db.Where("LOWER(description) LIKE ?", "%"+escapeLike(strings.ToLower(q.Description))+"%")
		}
		if q.AmountMin.Valid {
			db = db.Where("amount >= ?", q.AmountMin.Decimal)
		}
		if q.AmountMax.Valid {
			db = db.Where("amount <= ?", q.AmountMax.Decimal)
		}
		return db
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// AccountHistory 在同一個 REPEATABLE READ 快照中讀取帳戶與分錄
func (ledger *MySQLLedger) AccountHistory(ctx context.Context, userID int64) (*domain.Account, []domain.Operation, error) {
	var account *domain.Account
	var ops []domain.Operation
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user sqlUser
		err := tx.Where("id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("select user %d: %w", userID, err)
		}
		account = user.toDomain()
		ops, err = listOperations(tx, domain.OperationQuery{UserID: userID})
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return account, ops, nil
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
