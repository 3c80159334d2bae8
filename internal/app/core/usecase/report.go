package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// History 查詢分錄歷史
//
// 1. 儲存層依日期區間與等值/範圍/子字串條件過濾
// 2. 計算相對於 userID 的方向，再套用方向條件
// 3. 排序、分頁
func (c *CoreUseCase) History(ctx context.Context, userID int64, filter domain.HistoryFilter) (*domain.HistoryPage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	window, err := domain.NewDayWindow(filter.StartDate, filter.EndDate, c.now(), c.location)
	if err != nil {
		return nil, err
	}
	if _, err := c.ledger.GetAccount(ctx, userID); err != nil {
		return nil, err
	}

	ops, err := c.ledger.ListOperations(ctx, filter.Query(userID, window))
	if err != nil {
		return nil, err
	}

	entries, err := c.enrich(ctx, userID, ops)
	if err != nil {
		return nil, err
	}

	if len(filter.Directions) > 0 {
		kept := entries[:0]
		for _, e := range entries {
			if filter.WantsDirection(e.Direction) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	domain.SortEntries(entries, filter.Sort)
	return domain.Paginate(entries, filter.Page), nil
}

// BalanceReport 重放分錄計算區間的期初與期末餘額
// 只確認帳戶存在，不讀取帳戶的即時餘額
func (c *CoreUseCase) BalanceReport(ctx context.Context, userID int64, startDate, endDate *time.Time) (*domain.BalanceSummary, error) {
	window, err := domain.NewDayWindow(startDate, endDate, c.now(), c.location)
	if err != nil {
		return nil, err
	}
	// 與 Audit 相同，未知或已刪除的使用者回報 NotFound，而不是 {0, 0}
	if _, err := c.ledger.GetAccount(ctx, userID); err != nil {
		return nil, err
	}

	before, err := c.ledger.ListOperations(ctx, domain.OperationQuery{UserID: userID, Before: window.Start})
	if err != nil {
		return nil, err
	}
	during, err := c.ledger.ListOperations(ctx, domain.OperationQuery{UserID: userID, From: window.Start, To: window.End})
	if err != nil {
		return nil, err
	}

	start := domain.Fold(before, userID, decimal.Zero)
	return &domain.BalanceSummary{
		StartBalance: start,
		EndBalance:   domain.Fold(during, userID, start),
	}, nil
}

// AuditResult 稽核結果
type AuditResult struct {
	UserID     int64
	Stored     decimal.Decimal
	Replayed   decimal.Decimal
	Operations int
}

// Audit 比對即時餘額與完整歷史重放的結果
// 不一致時回傳 *domain.ConsistencyError 並記錄 ERROR
func (c *CoreUseCase) Audit(ctx context.Context, userID int64) (*AuditResult, error) {
	account, ops, err := c.ledger.AccountHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &AuditResult{
		UserID:     userID,
		Stored:     account.Balance,
		Replayed:   domain.Fold(ops, userID, decimal.Zero),
		Operations: len(ops),
	}
	if !result.Stored.Equal(result.Replayed) {
		c.logger.Error("balance drift detected",
			"user_id", userID, "stored", result.Stored.String(), "replayed", result.Replayed.String(), "operations", len(ops))
		return result, &domain.ConsistencyError{
			UserID:   userID,
			Stored:   result.Stored.String(),
			Replayed: result.Replayed.String(),
		}
	}
	return result, nil
}
