package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
)

// CardRepository 從 cards 表查詢卡片
// 軟刪除由 gorm.DeletedAt 處理，預設查詢會排除已刪除的卡片
type CardRepository struct {
	client *mysql.Client
}

func NewCardRepository(client *mysql.Client) *CardRepository {
	return &CardRepository{client: client}
}

func (r *CardRepository) FindActiveCard(ctx context.Context, cardID, ownerID int64) (*domain.Card, error) {
	var card sqlCard
	err := r.client.DB().WithContext(ctx).
		Where("id = ? AND user_id = ?", cardID, ownerID).
		Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select card %d: %w", cardID, err)
	}
	return card.toDomain(), nil
}

func (r *CardRepository) FindCards(ctx context.Context, ids []int64) (map[int64]*domain.Card, error) {
	var cards []sqlCard
	if err := r.client.DB().WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	found := make(map[int64]*domain.Card, len(cards))
	for i := range cards {
		found[cards[i].ID] = cards[i].toDomain()
	}
	return found, nil
}

var _ usecase.CardGateway = (*CardRepository)(nil)
