package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account 使用者帳戶 (User)
// Balance 是帳本的快照，只能由 Ledger Engine 變更
type Account struct {
	ID        int64           `json:"id" yaml:"id"`
	FirstName string          `json:"firstName" yaml:"first_name"`
	LastName  string          `json:"lastName" yaml:"last_name"`
	Balance   decimal.Decimal `json:"balance" yaml:"-"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty" yaml:"-"`
}

// NewAccount 建立帳戶
func NewAccount(id int64, firstName, lastName string) *Account {
	return &Account{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Balance:   decimal.Zero,
	}
}

// Active 未被軟刪除
func (a *Account) Active() bool {
	return a.DeletedAt == nil
}

// Deposit 存款
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Withdraw 提款
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Party 分錄上顯示的使用者資訊
type Party struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Party 轉成顯示用資訊
func (a *Account) Party() *Party {
	return &Party{ID: a.ID, FirstName: a.FirstName, LastName: a.LastName}
}

// Card 支付卡，此處只關心歸屬與是否可用
type Card struct {
	ID        int64      `json:"id" yaml:"id"`
	OwnerID   int64      `json:"user" yaml:"owner_id"`
	Name      string     `json:"name" yaml:"name"`
	Brand     string     `json:"brand" yaml:"brand"`
	Last4     string     `json:"last4" yaml:"last4"`
	ExpMonth  int        `json:"expMonth" yaml:"exp_month"`
	ExpYear   int        `json:"expYear" yaml:"exp_year"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" yaml:"-"`
}

// UsableBy 卡片存在、屬於 ownerID 且未刪除
func (c *Card) UsableBy(ownerID int64) bool {
	return c != nil && c.OwnerID == ownerID && c.DeletedAt == nil
}

// CardSummary 分錄上顯示的卡片資訊
type CardSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
	Deleted  bool   `json:"deleted"`
}

// Summary 轉成顯示用資訊
func (c *Card) Summary() *CardSummary {
	return &CardSummary{
		ID:       c.ID,
		Name:     c.Name,
		Brand:    c.Brand,
		Last4:    c.Last4,
		ExpMonth: c.ExpMonth,
		ExpYear:  c.ExpYear,
		Deleted:  c.DeletedAt != nil,
	}
}

// ParseAmount 解析金額字串，拒絕 NaN / Inf / 非數字 / 非正數
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// AmountScale 金額最多的小數位數，與資料庫欄位 decimal(20,4) 一致
const AmountScale = 4

// ValidateAmount 金額必須為正數，且小數位數不超過 AmountScale
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrAmountPrecision
	}
	return nil
}
