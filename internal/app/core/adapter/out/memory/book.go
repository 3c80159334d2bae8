package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// slot 單一帳戶，餘額只在持有 mu 時讀寫
type slot struct {
	mu      sync.Mutex
	account domain.Account
}

// book 記憶體帳本的共用狀態
//
// 結構:
//
//	slots: 帳戶，建立後 map 本身不再變動
//	mu: 保護 ops / processed / sequence / lastAt
//	ops: 依 sequence 排列的分錄
//	processed: 分錄 ID 對應 ops 的索引 (去重用)
//	wal: Write-Ahead Log，nil 代表不持久化
//
// 不變式: 修改某帳戶餘額的人，從檢查餘額到套用完畢都持有該帳戶的 slot 鎖
type book struct {
	slots map[int64]*slot

	mu        sync.RWMutex
	ops       []domain.Operation
	processed map[uuid.UUID]int
	sequence  uint64
	lastAt    time.Time

	wal *wal.WAL
}

func newBook(accounts []domain.Account, w *wal.WAL) (*book, error) {
	b := &book{
		slots:     make(map[int64]*slot, len(accounts)),
		ops:       make([]domain.Operation, 0),
		processed: make(map[uuid.UUID]int),
		wal:       w,
	}
	for _, a := range accounts {
		if _, ok := b.slots[a.ID]; ok {
			return nil, fmt.Errorf("duplicate account id %d", a.ID)
		}
		b.slots[a.ID] = &slot{account: a}
	}
	if w != nil {
		if err := b.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只在建構時呼叫 (單執行緒)，WAL 只包含已通過檢查的分錄
func (b *book) recoverFromWAL() error {
	return b.wal.ReadAll(func(jsonRaw []byte) error {
		var op domain.Operation
		if err := json.Unmarshal(jsonRaw, &op); err != nil {
			return err
		}
		if _, ok := b.processed[op.ID]; ok {
			return nil
		}
		if err := b.apply(&op); err != nil {
			return fmt.Errorf("recover operation %s: %w", op.ID, err)
		}
		b.record(op)
		return nil
	})
}

// lockSlots 依 ID 由小到大鎖定帳戶，避免死鎖
// 不存在的帳戶略過，交給 post 檢查
func (b *book) lockSlots(ids []int64) (unlock func()) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked := make([]*slot, 0, len(sorted))
	var last int64
	for i, id := range sorted {
		if i > 0 && id == last {
			continue
		}
		last = id
		if s, ok := b.slots[id]; ok {
			s.mu.Lock()
			locked = append(locked, s)
		}
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
}

// post 處理一筆分錄，呼叫前必須已持有 op.GetLockIDs() 的 slot 鎖
//
// 回傳:
//
//	*domain.Posting: 提交結果
//	error: 帳戶不存在、餘額不足、WAL 寫入失敗
func (b *book) post(op *domain.Operation) (*domain.Posting, error) {
	if !op.Type.Valid() {
		return nil, domain.ErrUnknownOperationType
	}
	if !op.Amount.IsPositive() {
		return nil, domain.ErrAmountMustBePositive
	}
	if posting, ok, err := b.replay(op); ok || err != nil {
		return posting, err
	}

	actor, ok := b.slots[op.UserID]
	if !ok || !actor.account.Active() {
		return nil, domain.ErrAccountNotFound
	}
	var recipient *slot
	if op.Type == domain.OperationTypeTransfer {
		recipient, ok = b.slots[op.RecipientID]
		if !ok || !recipient.account.Active() {
			return nil, domain.ErrRecipientNotFound
		}
	}
	if op.Debit() != 0 && actor.account.Balance.LessThan(op.Amount) {
		return nil, domain.ErrInsufficientBalance
	}

	stored, err := b.appendOp(*op)
	if err != nil {
		return nil, err
	}
	// 已通過檢查且持有鎖，這裡失敗代表狀態已經不一致
	if err := b.apply(&stored); err != nil {
		return nil, fmt.Errorf("apply operation %s after wal append: %w: %w", stored.ID, domain.ErrConsistency, err)
	}

	posting := &domain.Posting{
		Operation: stored,
		Balance:   actor.account.Balance,
	}
	if recipient != nil {
		posting.RecipientBalance = recipient.account.Balance
	}
	return posting, nil
}

// replay 去重：已處理過的 ID 回傳原本的分錄
func (b *book) replay(op *domain.Operation) (*domain.Posting, bool, error) {
	b.mu.RLock()
	idx, ok := b.processed[op.ID]
	var stored domain.Operation
	if ok {
		stored = b.ops[idx]
	}
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !stored.SamePayload(op) {
		return nil, false, domain.ErrOperationIDReused
	}

	posting := &domain.Posting{Operation: stored, Replayed: true}
	if s, ok := b.slots[stored.UserID]; ok {
		posting.Balance = s.account.Balance
	}
	if s, ok := b.slots[stored.RecipientID]; ok && stored.Type == domain.OperationTypeTransfer {
		posting.RecipientBalance = s.account.Balance
	}
	return posting, true, nil
}

// appendOp 分配 sequence、寫入 WAL 並加入歷史
// createdAt 不會早於前一筆，讓 (createdAt, sequence) 與 sequence 順序一致
func (b *book) appendOp(op domain.Operation) (domain.Operation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 同一個 ID 但涉及不同帳戶的請求不會被 slot 鎖互斥，在這裡擋下
	if _, dup := b.processed[op.ID]; dup {
		return domain.Operation{}, domain.ErrOperationIDReused
	}
	op.Sequence = b.sequence + 1
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	if op.CreatedAt.Before(b.lastAt) {
		op.CreatedAt = b.lastAt
	}

	// 1. 寫入 WAL (Critical Path)
	if b.wal != nil {
		if err := b.wal.Write(&op); err != nil {
			return domain.Operation{}, fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
		}
	}
	// 2. 加入歷史
	b.record(op)
	return op, nil
}

// record 加入歷史 (呼叫者持有 b.mu 或處於建構階段)
func (b *book) record(op domain.Operation) {
	b.ops = append(b.ops, op)
	b.processed[op.ID] = len(b.ops) - 1
	if op.Sequence > b.sequence {
		b.sequence = op.Sequence
	}
	if op.CreatedAt.After(b.lastAt) {
		b.lastAt = op.CreatedAt
	}
}

// apply 套用餘額變動
func (b *book) apply(op *domain.Operation) error {
	if id := op.Debit(); id != 0 {
		s, ok := b.slots[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if err := s.account.Withdraw(op.Amount); err != nil {
			return err
		}
	}
	if id := op.Credit(); id != 0 {
		s, ok := b.slots[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if err := s.account.Deposit(op.Amount); err != nil {
			return err
		}
	}
	return nil
}

// GetAccount 取得未刪除的帳戶
func (b *book) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	s, ok := b.slots[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()
	if !account.Active() {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

// FindAccounts 批次取得帳戶 (包含已刪除)
func (b *book) FindAccounts(ctx context.Context, ids []int64) (map[int64]*domain.Account, error) {
	found := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		s, ok := b.slots[id]
		if !ok {
			continue
		}
		s.mu.Lock()
		account := s.account
		s.mu.Unlock()
		found[id] = &account
	}
	return found, nil
}

// ListOperations 依條件查詢分錄
func (b *book) ListOperations(ctx context.Context, q domain.OperationQuery) ([]domain.Operation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]domain.Operation, 0)
	for i := range b.ops {
		if q.Match(&b.ops[i]) {
			result = append(result, b.ops[i])
		}
	}
	return result, nil
}

// AccountHistory 持有帳戶鎖時讀取餘額與歷史，兩者一致
func (b *book) AccountHistory(ctx context.Context, userID int64) (*domain.Account, []domain.Operation, error) {
	s, ok := b.slots[userID]
	if !ok {
		return nil, nil, domain.ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.account
	ops, err := b.ListOperations(ctx, domain.OperationQuery{UserID: userID})
	if err != nil {
		return nil, nil, err
	}
	return &account, ops, nil
}

// LoadAllAccounts 目前所有帳戶的快照，依 ID 排序
func (b *book) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	ids := make([]int64, 0, len(b.slots))
	for id := range b.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	accounts := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		s := b.slots[id]
		s.mu.Lock()
		accounts = append(accounts, s.account)
		s.mu.Unlock()
	}
	return accounts, nil
}

