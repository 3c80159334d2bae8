package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// CardDirectory 記憶體版的卡片服務
type CardDirectory struct {
	mu    sync.RWMutex
	cards map[int64]domain.Card
}

func NewCardDirectory(cards []domain.Card) *CardDirectory {
	d := &CardDirectory{cards: make(map[int64]domain.Card, len(cards))}
	for _, c := range cards {
		d.cards[c.ID] = c
	}
	return d
}

// Add 新增或覆蓋卡片
func (d *CardDirectory) Add(card domain.Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards[card.ID] = card
}

// Remove 軟刪除卡片，歷史分錄仍可顯示
func (d *CardDirectory) Remove(cardID int64, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cards[cardID]; ok && c.DeletedAt == nil {
		c.DeletedAt = &at
		d.cards[cardID] = c
	}
}

func (d *CardDirectory) FindActiveCard(ctx context.Context, cardID, ownerID int64) (*domain.Card, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cards[cardID]
	if !ok || !c.UsableBy(ownerID) {
		return nil, domain.ErrCardNotFound
	}
	return &c, nil
}

func (d *CardDirectory) FindCards(ctx context.Context, ids []int64) (map[int64]*domain.Card, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	found := make(map[int64]*domain.Card, len(ids))
	for _, id := range ids {
		if c, ok := d.cards[id]; ok {
			found[id] = &c
		}
	}
	return found, nil
}

var _ usecase.CardGateway = (*CardDirectory)(nil)
