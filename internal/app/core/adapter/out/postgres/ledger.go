package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// 可重試的 PostgreSQL 錯誤碼
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"

	refIDConstraint = "operations_ref_id_key"
)

// PostgresLedger 以 PostgreSQL 實作的帳本
//
// 每筆分錄在一個 Transaction 內: 依 id 順序 FOR UPDATE 鎖定帳戶，
// 扣款使用條件式更新 (balance = balance - $1 WHERE balance >= $1)，入帳與分錄寫入一起提交。
type PostgresLedger struct {
	db         *sql.DB
	maxRetries int
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{
		db:         db,
		maxRetries: 3,
	}
}

// PostOperation 以單一 Transaction 提交分錄，死鎖或序列化失敗時重試
func (l *PostgresLedger) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	if !op.Type.Valid() {
		return nil, domain.ErrUnknownOperationType
	}
	if !op.Amount.IsPositive() {
		return nil, domain.ErrAmountMustBePositive
	}

	var posting *domain.Posting
	var err error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		posting, err = l.postOnce(ctx, op)
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

func (l *PostgresLedger) postOnce(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	replayed, err := replayOperation(ctx, tx, op)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return replayed, tx.Commit()
	}

	// 依 id 順序鎖定帳戶
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM users WHERE id = ANY($1) AND deleted_at IS NULL ORDER BY id FOR UPDATE`,
		pq.Array(op.GetLockIDs()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", err)
	}
	locked := make(map[int64]bool, 2)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		locked[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !locked[op.UserID] {
		return nil, domain.ErrAccountNotFound
	}
	if op.Type == domain.OperationTypeTransfer && !locked[op.RecipientID] {
		return nil, domain.ErrRecipientNotFound
	}

	posting := &domain.Posting{}
	if id := op.Debit(); id != 0 {
		err := tx.QueryRowContext(ctx,
			`UPDATE users SET balance = balance - $1, updated_at = NOW()
			 WHERE id = $2 AND balance >= $1
			 RETURNING balance`,
			op.Amount, id,
		).Scan(&posting.Balance)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInsufficientBalance
		}
		if err != nil {
			return nil, fmt.Errorf("failed to debit user %d: %w", id, err)
		}
	}
	if id := op.Credit(); id != 0 {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`UPDATE users SET balance = balance + $1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING balance`,
			op.Amount, id,
		).Scan(&balance)
		if err != nil {
			return nil, fmt.Errorf("failed to credit user %d: %w", id, err)
		}
		if op.Type == domain.OperationTypeDeposit {
			posting.Balance = balance
		} else {
			posting.RecipientBalance = balance
		}
	}

	stored := *op
	err = tx.QueryRowContext(ctx,
		`INSERT INTO operations (ref_id, type, user_id, card_id, recipient_id, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		op.ID, string(op.Type), op.UserID, nullID(op.CardID), nullID(op.RecipientID), op.Amount, op.Description, op.CreatedAt,
	).Scan(&stored.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to insert operation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	posting.Operation = stored
	return posting, nil
}

// replayOperation 已有相同 ref_id 的分錄時回傳它與目前的餘額
func replayOperation(ctx context.Context, tx *sql.Tx, op *domain.Operation) (*domain.Posting, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE ref_id = $1`, op.ID)
	stored, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select operation by ref_id: %w", err)
	}
	if !stored.SamePayload(op) {
		return nil, domain.ErrOperationIDReused
	}

	posting := &domain.Posting{Operation: stored, Replayed: true}
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, stored.UserID).Scan(&posting.Balance); err != nil {
		return nil, fmt.Errorf("failed to select balance: %w", err)
	}
	if stored.Type == domain.OperationTypeTransfer {
		if err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, stored.RecipientID).Scan(&posting.RecipientBalance); err != nil {
			return nil, fmt.Errorf("failed to select balance: %w", err)
		}
	}
	return posting, nil
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		// 同一個 ref_id 同時送進來，重試時會走 replay
		return pqErr.Constraint == refIDConstraint
	}
	return false
}

// GetAccount 取得未刪除的帳戶
func (l *PostgresLedger) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, userID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select user %d: %w", userID, err)
	}
	return account, nil
}

// FindAccounts 批次取得帳戶 (包含已刪除)
func (l *PostgresLedger) FindAccounts(ctx context.Context, ids []int64) (map[int64]*domain.Account, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]*domain.Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		found[account.ID] = account
	}
	return found, rows.Err()
}

// ListOperations 依條件查詢分錄
func (l *PostgresLedger) ListOperations(ctx context.Context, q domain.OperationQuery) ([]domain.Operation, error) {
	return listOperations(ctx, l.db, q)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listOperations(ctx context.Context, db queryer, q domain.OperationQuery) ([]domain.Operation, error) {
	where, args := buildOperationWhere(q)
	rows, err := db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select operations (%s): %w", q, err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// buildOperationWhere 把查詢條件轉成 WHERE 子句，條件之間為 AND
func buildOperationWhere(q domain.OperationQuery) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	user := arg(q.UserID)
	conds = append(conds, fmt.Sprintf("(user_id = %s OR (type = 'transfer' AND recipient_id = %s))", user, user))
	if !q.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		conds = append(conds, "created_at <= "+arg(q.To))
	}
	if !q.Before.IsZero() {
		conds = append(conds, "created_at < "+arg(q.Before))
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		conds = append(conds, "type = ANY("+arg(pq.Array(types))+")")
	}
	if len(q.Recipients) > 0 {
		conds = append(conds, "recipient_id = ANY("+arg(pq.Array(q.Recipients))+")")
	}
	if len(q.Cards) > 0 {
		conds = append(conds, "card_id = ANY("+arg(pq.Array(q.Cards))+")")
	}
	if q.Description != "" {
		conds = append(conds, "description ILIKE "+arg("%"+likeEscaper.Replace(q.Description)+"%"))
	}
	if q.AmountMin.Valid {
		conds = append(conds, "amount >= "+arg(q.AmountMin.Decimal))
	}
	if q.AmountMax.Valid {
		conds = append(conds, "amount <= "+arg(q.AmountMax.Decimal))
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// AccountHistory 在同一個 REPEATABLE READ 快照中讀取帳戶與分錄
func (l *PostgresLedger) AccountHistory(ctx context.Context, userID int64) (*domain.Account, []domain.Operation, error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select user %d: %w", userID, err)
	}
	ops, err := listOperations(ctx, tx, domain.OperationQuery{UserID: userID})
	if err != nil {
		return nil, nil, err
	}
	return account, ops, tx.Commit()
}

const (
	userColumns      = `id, first_name, last_name, balance, deleted_at`
	operationColumns = `id, ref_id, type, user_id, card_id, recipient_id, amount, description, created_at`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var deletedAt sql.NullTime
	if err := s.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Balance, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	return &a, nil
}

func scanOperation(s scanner) (domain.Operation, error) {
	var op domain.Operation
	var refID uuid.UUID
	var typ string
	var cardID, recipientID sql.NullInt64
	if err := s.Scan(&op.Sequence, &refID, &typ, &op.UserID, &cardID, &recipientID, &op.Amount, &op.Description, &op.CreatedAt); err != nil {
		return domain.Operation{}, err
	}
	op.ID = refID
	op.Type = domain.OperationType(typ)
	op.CardID = cardID.Int64
	op.RecipientID = recipientID.Int64
	op.CreatedAt = op.CreatedAt.UTC()
	return op, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

var _ usecase.Ledger = (*PostgresLedger)(nil)
