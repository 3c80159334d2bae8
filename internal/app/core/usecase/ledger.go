package usecase

import (
	"context"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// Ledger 是帳務儲存的介面 (Account Store + 分錄歷史)
type Ledger interface {
	// PostOperation 以單一原子單位提交分錄：去重、鎖定帳戶、檢查餘額、寫入分錄、調整餘額
	// 分錄 ID 已提交過時回傳原分錄且 Replayed=true，不做任何變動
	PostOperation(ctx context.Context, op *domain.Operation) (*domain.Posting, error)
	// GetAccount 取得未刪除的帳戶
	GetAccount(ctx context.Context, userID int64) (*domain.Account, error)
	// FindAccounts 批次取得帳戶 (包含已刪除的，供顯示用)
	FindAccounts(ctx context.Context, ids []int64) (map[int64]*domain.Account, error)
	// ListOperations 依條件查詢分錄，依 (createdAt, sequence) 遞增
	ListOperations(ctx context.Context, q domain.OperationQuery) ([]domain.Operation, error)
	// AccountHistory 從同一個一致的快照讀取帳戶與它的所有分錄
	AccountHistory(ctx context.Context, userID int64) (*domain.Account, []domain.Operation, error)
}

// CardGateway 卡片服務 (外部協作者)
type CardGateway interface {
	// FindActiveCard 卡片存在、屬於 ownerID 且未刪除，否則回傳 domain.ErrCardNotFound
	FindActiveCard(ctx context.Context, cardID, ownerID int64) (*domain.Card, error)
	// FindCards 批次取得卡片 (包含已刪除的，供顯示用)
	FindCards(ctx context.Context, ids []int64) (map[int64]*domain.Card, error)
}

// EventPublisher 提交後的通知
type EventPublisher interface {
	Publish(ctx context.Context, event OperationRecorded) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, OperationRecorded) error { return nil }
