package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層
//
// 結構:
//
//	ledger: 帳戶與分錄儲存
//	cards: 卡片服務
//	publisher: 提交後的事件通知
//	now: 時鐘 (測試時可替換)
//	location: 日期區間以此時區切日
type CoreUseCase struct {
	ledger    Ledger
	cards     CardGateway
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	location  *time.Location
}

// Option 設定 CoreUseCase
type Option func(*CoreUseCase)

// WithPublisher 設定事件發布者
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithLogger 設定 logger
func WithLogger(l *slog.Logger) Option {
	return func(c *CoreUseCase) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock 設定時鐘
func WithClock(now func() time.Time) Option {
	return func(c *CoreUseCase) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation 設定切日用的時區
func WithLocation(loc *time.Location) Option {
	return func(c *CoreUseCase) {
		if loc != nil {
			c.location = loc
		}
	}
}

func NewCoreUseCase(ledger Ledger, cards CardGateway, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:    ledger,
		cards:     cards,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location 切日用的時區，不帶時區的日期字串也以此解析
func (c *CoreUseCase) Location() *time.Location {
	return c.location
}

// GetBalance 取得帳戶的即時餘額
func (c *CoreUseCase) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := c.ledger.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// enrich 為分錄補上發起方、卡片、收款方的顯示資訊，並計算相對於 viewer 的方向
func (c *CoreUseCase) enrich(ctx context.Context, viewer int64, ops []domain.Operation) ([]domain.Entry, error) {
	userIDs := make([]int64, 0, len(ops))
	cardIDs := make([]int64, 0)
	seenUser := make(map[int64]bool)
	seenCard := make(map[int64]bool)
	for i := range ops {
		for _, id := range []int64{ops[i].UserID, ops[i].RecipientID} {
			if id != 0 && !seenUser[id] {
				seenUser[id] = true
				userIDs = append(userIDs, id)
			}
		}
		if id := ops[i].CardID; id != 0 && !seenCard[id] {
			seenCard[id] = true
			cardIDs = append(cardIDs, id)
		}
	}

	users := map[int64]*domain.Account{}
	if len(userIDs) > 0 {
		found, err := c.ledger.FindAccounts(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		users = found
	}
	cards := map[int64]*domain.Card{}
	if len(cardIDs) > 0 {
		found, err := c.cards.FindCards(ctx, cardIDs)
		if err != nil {
			return nil, err
		}
		cards = found
	}

	entries := make([]domain.Entry, len(ops))
	for i := range ops {
		op := ops[i]
		entry := domain.Entry{
			Operation: op,
			Direction: op.DirectionFor(viewer),
		}
		if u, ok := users[op.UserID]; ok {
			entry.Owner = u.Party()
		}
		if op.RecipientID != 0 {
			if u, ok := users[op.RecipientID]; ok {
				entry.Recipient = u.Party()
			}
		}
		if op.CardID != 0 {
			if card, ok := cards[op.CardID]; ok {
				entry.Card = card.Summary()
			}
		}
		entries[i] = entry
	}
	return entries, nil
}
