package usecase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// OperationRecorded 分錄提交後發出的事件
type OperationRecorded struct {
	OperationID uuid.UUID            `json:"operation_id"`
	Type        domain.OperationType `json:"type"`
	UserID      int64                `json:"user_id"`
	CardID      int64                `json:"card_id,omitempty"`
	RecipientID int64                `json:"recipient_id,omitempty"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	Balance     decimal.Decimal      `json:"balance"`
	CreatedAt   time.Time            `json:"created_at"`
}

func newOperationRecorded(p *domain.Posting) OperationRecorded {
	op := p.Operation
	return OperationRecorded{
		OperationID: op.ID,
		Type:        op.Type,
		UserID:      op.UserID,
		CardID:      op.CardID,
		RecipientID: op.RecipientID,
		Amount:      op.Amount,
		Description: op.Description,
		Balance:     p.Balance,
		CreatedAt:   op.CreatedAt,
	}
}
