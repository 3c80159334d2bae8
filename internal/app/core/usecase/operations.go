package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// DepositCommand 存款 / 提款共用的請求
type DepositCommand struct {
	// RefID: 去重鍵，零值時自動產生
	RefID       uuid.UUID
	UserID      int64
	CardID      int64
	Amount      decimal.Decimal
	Description string
}

// WithdrawCommand 提款請求
type WithdrawCommand = DepositCommand

// TransferCommand 轉帳請求
type TransferCommand struct {
	RefID       uuid.UUID
	UserID      int64
	RecipientID int64
	Amount      decimal.Decimal
	Description string
}

// Deposit 存款
//
// 驗證順序: 金額 -> 描述 -> 卡片
func (c *CoreUseCase) Deposit(ctx context.Context, cmd DepositCommand) (*domain.Receipt, error) {
	return c.postCardOperation(ctx, domain.OperationTypeDeposit, cmd)
}

// Withdraw 提款
//
// 驗證順序: 金額 -> 描述 -> 卡片 -> 餘額 (在儲存層的原子單位內檢查)
func (c *CoreUseCase) Withdraw(ctx context.Context, cmd WithdrawCommand) (*domain.Receipt, error) {
	return c.postCardOperation(ctx, domain.OperationTypeWithdraw, cmd)
}

func (c *CoreUseCase) postCardOperation(ctx context.Context, typ domain.OperationType, cmd DepositCommand) (*domain.Receipt, error) {
	description, err := validateMovement(cmd.Amount, cmd.Description)
	if err != nil {
		return nil, err
	}
	if cmd.CardID <= 0 {
		return nil, domain.NewFieldError("card", "missing field 'card'")
	}
	if _, err := c.cards.FindActiveCard(ctx, cmd.CardID, cmd.UserID); err != nil {
		return nil, err
	}

	op := &domain.Operation{
		ID:          refID(cmd.RefID),
		Type:        typ,
		UserID:      cmd.UserID,
		CardID:      cmd.CardID,
		Amount:      cmd.Amount,
		Description: description,
		CreatedAt:   c.now().UTC(),
	}
	return c.post(ctx, op)
}

// Transfer 轉帳
//
// 驗證順序: 金額 -> 描述 -> 收款人 -> 不可轉給自己 -> 收款人存在 -> 餘額 (原子單位內)
// 扣款、入帳與分錄寫入在同一個原子單位內完成
func (c *CoreUseCase) Transfer(ctx context.Context, cmd TransferCommand) (*domain.Receipt, error) {
	description, err := validateMovement(cmd.Amount, cmd.Description)
	if err != nil {
		return nil, err
	}
	if cmd.RecipientID <= 0 {
		return nil, domain.NewFieldError("recipient", "missing field 'recipient'")
	}
	if cmd.RecipientID == cmd.UserID {
		return nil, domain.ErrSelfTransfer
	}
	if _, err := c.ledger.GetAccount(ctx, cmd.RecipientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		return nil, err
	}

	op := &domain.Operation{
		ID:          refID(cmd.RefID),
		Type:        domain.OperationTypeTransfer,
		UserID:      cmd.UserID,
		RecipientID: cmd.RecipientID,
		Amount:      cmd.Amount,
		Description: description,
		CreatedAt:   c.now().UTC(),
	}
	return c.post(ctx, op)
}

// post 提交分錄並組裝回傳值，提交成功後才發布事件
func (c *CoreUseCase) post(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	posting, err := c.ledger.PostOperation(ctx, op)
	if err != nil {
		if errors.Is(err, domain.ErrConsistency) {
			c.logger.Error("ledger posting left inconsistent state",
				"operation_id", op.ID, "type", op.Type, "user_id", op.UserID, "recipient_id", op.RecipientID, "error", err)
		}
		return nil, err
	}

	if posting.Replayed {
		c.logger.Info("operation already processed", "operation_id", op.ID, "user_id", op.UserID)
	} else if err := c.publisher.Publish(ctx, newOperationRecorded(posting)); err != nil {
		// 事件只是通知，餘額已經提交，不回滾
		c.logger.Error("publish operation_recorded failed", "operation_id", posting.Operation.ID, "error", err)
	}

	entries, err := c.enrich(ctx, op.UserID, []domain.Operation{posting.Operation})
	if err != nil {
		return nil, fmt.Errorf("enrich operation %s: %w", posting.Operation.ID, err)
	}
	return &domain.Receipt{
		Entry:    entries[0],
		Balance:  posting.Balance,
		Replayed: posting.Replayed,
	}, nil
}

func validateMovement(amount decimal.Decimal, description string) (string, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return "", err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return "", domain.ErrDescriptionRequired
	}
	return description, nil
}

func refID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
