package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType 交易類型 (持久化的字面值)
type OperationType string

const (
	// 存款
	OperationTypeDeposit OperationType = "deposit"
	// 提款
	OperationTypeWithdraw OperationType = "withdraw"
	// 轉帳
	OperationTypeTransfer OperationType = "transfer"
)

// OperationTypes 所有合法的交易類型
var OperationTypes = []OperationType{OperationTypeDeposit, OperationTypeWithdraw, OperationTypeTransfer}

// Valid 是否為已知類型
func (t OperationType) Valid() bool {
	switch t {
	case OperationTypeDeposit, OperationTypeWithdraw, OperationTypeTransfer:
		return true
	}
	return false
}

// ParseOperationType 解析交易類型字串
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrUnknownOperationType
	}
	return t, nil
}

// Direction 收入/支出，相對於觀察者計算，不儲存
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionOutcome Direction = "outcome"
)

// ParseDirection 解析方向字串
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DirectionIncome, DirectionOutcome:
		return d, true
	}
	return "", false
}

// Operation 帳本分錄，建立後不可修改、不可刪除
type Operation struct {
	// ID: 外部追蹤號，同時是去重鍵 (dedup key)
	ID uuid.UUID `json:"id"`
	// Sequence: 由儲存層分配的插入順序，createdAt 相同時用來決定先後
	Sequence uint64 `json:"sequence"`
	// Type: deposit / withdraw / transfer
	Type OperationType `json:"type"`
	// UserID: 發起方
	UserID int64 `json:"user"`
	// CardID: 只有 deposit / withdraw 有
	CardID int64 `json:"card,omitempty"`
	// RecipientID: 只有 transfer 有
	RecipientID int64           `json:"recipient,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Touches 此分錄是否與使用者有關 (發起方或收款方)
func (o *Operation) Touches(userID int64) bool {
	return o.UserID == userID || (o.Type == OperationTypeTransfer && o.RecipientID == userID)
}

// DirectionFor 計算相對於 userID 的方向
// deposit 或收到的轉帳為 income，其餘為 outcome
func (o *Operation) DirectionFor(userID int64) Direction {
	switch o.Type {
	case OperationTypeDeposit:
		return DirectionIncome
	case OperationTypeTransfer:
		if o.RecipientID == userID {
			return DirectionIncome
		}
	}
	return DirectionOutcome
}

// SignedAmountFor 對 userID 餘額的影響量
func (o *Operation) SignedAmountFor(userID int64) decimal.Decimal {
	if !o.Touches(userID) {
		return decimal.Zero
	}
	if o.DirectionFor(userID) == DirectionIncome {
		return o.Amount
	}
	return o.Amount.Neg()
}

// GetLockIDs 回傳需要鎖定的帳號 ID，並確保順序以避免死鎖
func (o *Operation) GetLockIDs() (ids []int64) {
	ids = make([]int64, 0, 2)
	switch o.Type {
	case OperationTypeTransfer:
		if o.UserID < o.RecipientID {
			ids = append(ids, o.UserID, o.RecipientID)
		} else {
			ids = append(ids, o.RecipientID, o.UserID)
		}
	case OperationTypeDeposit, OperationTypeWithdraw:
		ids = append(ids, o.UserID)
	}
	return ids
}

// Debit 需要扣款的帳戶，沒有則回傳 0
func (o *Operation) Debit() int64 {
	switch o.Type {
	case OperationTypeWithdraw, OperationTypeTransfer:
		return o.UserID
	}
	return 0
}

// Credit 需要入帳的帳戶，沒有則回傳 0
func (o *Operation) Credit() int64 {
	switch o.Type {
	case OperationTypeDeposit:
		return o.UserID
	case OperationTypeTransfer:
		return o.RecipientID
	}
	return 0
}

// SamePayload 兩筆分錄的請求內容是否相同 (不比較 ID 與提交後才有的欄位)
// 相同 ID 但內容不同時，各種儲存實作一律回報 ErrOperationIDReused
func (o *Operation) SamePayload(other *Operation) bool {
	return o.Type == other.Type &&
		o.UserID == other.UserID &&
		o.CardID == other.CardID &&
		o.RecipientID == other.RecipientID &&
		o.Amount.Equal(other.Amount) &&
		o.Description == other.Description
}

// Before 帳本的全序：先比 createdAt，相同再比 Sequence
func (o *Operation) Before(other *Operation) bool {
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.Before(other.CreatedAt)
	}
	return o.Sequence < other.Sequence
}

// Posting 儲存層提交一筆分錄後的結果
type Posting struct {
	Operation Operation
	// Balance: 發起方提交後的餘額
	Balance decimal.Decimal
	// RecipientBalance: 轉帳收款方提交後的餘額
	RecipientBalance decimal.Decimal
	// Replayed: 此分錄先前已提交過，本次沒有任何變動
	Replayed bool
}
