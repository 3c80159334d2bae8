package mysql

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// sqlUser 對應資料庫的 users 表
type sqlUser struct {
	ID        int64           `gorm:"primaryKey"`
	FirstName string          `gorm:"size:100;not null"`
	LastName  string          `gorm:"size:100;not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (*sqlUser) TableName() string {
	return "users"
}

func (u *sqlUser) toDomain() *domain.Account {
	a := &domain.Account{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Balance:   u.Balance,
	}
	if u.DeletedAt.Valid {
		t := u.DeletedAt.Time
		a.DeletedAt = &t
	}
	return a
}

// sqlCard 對應資料庫的 cards 表 (只讀取本服務需要的欄位)
type sqlCard struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	Name      string `gorm:"size:100"`
	Brand     string `gorm:"size:32"`
	Last4     string `gorm:"size:4"`
	ExpMonth  int
	ExpYear   int
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (*sqlCard) TableName() string {
	return "cards"
}

func (c *sqlCard) toDomain() *domain.Card {
	card := &domain.Card{
		ID:       c.ID,
		OwnerID:  c.UserID,
		Name:     c.Name,
		Brand:    c.Brand,
		Last4:    c.Last4,
		ExpMonth: c.ExpMonth,
		ExpYear:  c.ExpYear,
	}
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		card.DeletedAt = &t
	}
	return card
}

// sqlOperation 對應資料庫的 operations 表，只新增不修改
// ID 自動遞增，作為 sequence
type sqlOperation struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	RefID       []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Operation.ID
	Type        string          `gorm:"size:16;not null;index"`
	UserID      int64           `gorm:"not null;index:idx_operations_user_created,priority:1"`
	CardID      *int64          `gorm:"index"`
	RecipientID *int64          `gorm:"index:idx_operations_recipient_created,priority:1"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Description string          `gorm:"size:255;not null"`
	CreatedAt   time.Time       `gorm:"type:datetime(6);not null;index:idx_operations_user_created,priority:2;index:idx_operations_recipient_created,priority:2"`
}

func (*sqlOperation) TableName() string {
	return "operations"
}

func newSQLOperation(op *domain.Operation) *sqlOperation {
	row := &sqlOperation{
		RefID:       op.ID[:],
		Type:        string(op.Type),
		UserID:      op.UserID,
		Amount:      op.Amount,
		Description: op.Description,
		CreatedAt:   op.CreatedAt,
	}
	if op.CardID != 0 {
		id := op.CardID
		row.CardID = &id
	}
	if op.RecipientID != 0 {
		id := op.RecipientID
		row.RecipientID = &id
	}
	return row
}

func (o *sqlOperation) toDomain() (domain.Operation, error) {
	id, err := uuid.FromBytes(o.RefID)
	if err != nil {
		return domain.Operation{}, err
	}
	op := domain.Operation{
		ID:          id,
		Sequence:    uint64(o.ID),
		Type:        domain.OperationType(o.Type),
		UserID:      o.UserID,
		Amount:      o.Amount,
		Description: o.Description,
		CreatedAt:   o.CreatedAt.UTC(),
	}
	if o.CardID != nil {
		op.CardID = *o.CardID
	}
	if o.RecipientID != nil {
		op.RecipientID = *o.RecipientID
	}
	return op, nil
}

// Migrate 建立或更新資料表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&sqlUser{}, &sqlCard{}, &sqlOperation{})
}
