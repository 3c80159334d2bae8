package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

const cardColumns = `id, user_id, name, brand, last4, exp_month, exp_year, deleted_at`

// CardRepository 從 cards 表查詢卡片
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) FindActiveCard(ctx context.Context, cardID, ownerID int64) (*domain.Card, error) {
	card, err := scanCard(r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		cardID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select card %d: %w", cardID, err)
	}
	return card, nil
}

func (r *CardRepository) FindCards(ctx context.Context, ids []int64) (map[int64]*domain.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to select cards: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]*domain.Card, len(ids))
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		found[card.ID] = card
	}
	return found, rows.Err()
}

func scanCard(s scanner) (*domain.Card, error) {
	var c domain.Card
	var deletedAt sql.NullTime
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Brand, &c.Last4, &c.ExpMonth, &c.ExpYear, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

var _ usecase.CardGateway = (*CardRepository)(nil)
