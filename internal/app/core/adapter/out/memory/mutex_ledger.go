package memory

import (
	"context"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// MutexLedger 是一個使用帳戶鎖實現的帳本
//
// 每筆分錄依 ID 順序鎖定涉及的帳戶，從餘額檢查、WAL 寫入到餘額套用都在鎖內完成。
// 不同帳戶的分錄可以同時進行。
type MutexLedger struct {
	*book
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶
//	wal: Write-Ahead Log 實例，nil 代表不持久化
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts []domain.Account, wal *wal.WAL) (*MutexLedger, error) {
	b, err := newBook(accounts, wal)
	if err != nil {
		return nil, err
	}
	return &MutexLedger{book: b}, nil
}

// PostOperation 處理分錄 (Level 1: Mutex Lock)
func (m *MutexLedger) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := m.lockSlots(op.GetLockIDs())
	defer unlock()
	return m.post(op)
}

var _ usecase.Ledger = (*MutexLedger)(nil)
