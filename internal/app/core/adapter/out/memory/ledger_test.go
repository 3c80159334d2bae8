package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

type ledgerFactory func(t *testing.T, accounts []domain.Account, w *wal.WAL) usecase.Ledger

var factories = map[string]ledgerFactory{
	"mutex": func(t *testing.T, accounts []domain.Account, w *wal.WAL) usecase.Ledger {
		l, err := NewMutexLedger(accounts, w)
		require.NoError(t, err)
		return l
	},
	"sequenced": func(t *testing.T, accounts []domain.Account, w *wal.WAL) usecase.Ledger {
		l, err := NewSequencedLedger(accounts, w, 16)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		l.Start(ctx)
		t.Cleanup(func() {
			cancel()
			<-l.Done()
		})
		return l
	},
}

func testAccounts() []domain.Account {
	return []domain.Account{
		*domain.NewAccount(1, "Alice", "Chen"),
		*domain.NewAccount(2, "Bob", "Lin"),
		*domain.NewAccount(3, "Carol", "Wang"),
	}
}

func deposit(user int64, amount string) *domain.Operation {
	return &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeDeposit, UserID: user, CardID: user, Amount: decimal.RequireFromString(amount), Description: "deposit"}
}

func withdraw(user int64, amount string) *domain.Operation {
	return &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeWithdraw, UserID: user, CardID: user, Amount: decimal.RequireFromString(amount), Description: "withdraw"}
}

func transfer(from, to int64, amount string) *domain.Operation {
	return &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeTransfer, UserID: from, RecipientID: to, Amount: decimal.RequireFromString(amount), Description: "transfer"}
}

func balanceOf(t *testing.T, l usecase.Ledger, id int64) string {
	t.Helper()
	a, err := l.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance.String()
}

func forEachLedger(t *testing.T, fn func(t *testing.T, newLedger func(accounts []domain.Account, w *wal.WAL) usecase.Ledger)) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			fn(t, func(accounts []domain.Account, w *wal.WAL) usecase.Ledger {
				return factory(t, accounts, w)
			})
		})
	}
}

func TestPostOperationBalances(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		l := newLedger(testAccounts(), nil)

		p, err := l.PostOperation(ctx, deposit(1, "100"))
		require.NoError(t, err)
		assert.Equal(t, "100", p.Balance.String())

		p, err = l.PostOperation(ctx, withdraw(1, "10"))
		require.NoError(t, err)
		assert.Equal(t, "90", p.Balance.String())

		p, err = l.PostOperation(ctx, transfer(1, 2, "10"))
		require.NoError(t, err)
		assert.Equal(t, "80", p.Balance.String())
		assert.Equal(t, "10", p.RecipientBalance.String())

		_, err = l.PostOperation(ctx, withdraw(1, "110"))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, "80", balanceOf(t, l, 1))

		ops, err := l.ListOperations(ctx, domain.OperationQuery{UserID: 1})
		require.NoError(t, err)
		require.Len(t, ops, 3)
		for i := 1; i < len(ops); i++ {
			assert.True(t, ops[i-1].Before(&ops[i]))
		}
	})
}

func TestPostOperationRejects(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		accounts := testAccounts()
		deleted := time.Now()
		accounts[2].DeletedAt = &deleted
		l := newLedger(accounts, nil)

		_, err := l.PostOperation(ctx, deposit(9, "1"))
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)

		_, err = l.PostOperation(ctx, deposit(3, "1"))
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)

		_, err = l.PostOperation(ctx, deposit(1, "50"))
		require.NoError(t, err)
		_, err = l.PostOperation(ctx, transfer(1, 3, "10"))
		assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
		_, err = l.PostOperation(ctx, transfer(1, 2, "50.01"))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		op := deposit(1, "0")
		_, err = l.PostOperation(ctx, op)
		assert.ErrorIs(t, err, domain.ErrValidation)

		// 失敗的分錄不會留下紀錄，也不影響餘額
		assert.Equal(t, "50", balanceOf(t, l, 1))
		assert.Equal(t, "0", balanceOf(t, l, 2))
		ops, err := l.ListOperations(ctx, domain.OperationQuery{UserID: 1})
		require.NoError(t, err)
		assert.Len(t, ops, 1)
	})
}

func TestPostOperationIdempotent(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		l := newLedger(testAccounts(), nil)
		_, err := l.PostOperation(ctx, deposit(1, "100"))
		require.NoError(t, err)

		op := transfer(1, 2, "30")
		first, err := l.PostOperation(ctx, op)
		require.NoError(t, err)
		assert.False(t, first.Replayed)

		again := *op
		second, err := l.PostOperation(ctx, &again)
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Operation.Sequence, second.Operation.Sequence)
		assert.Equal(t, "70", balanceOf(t, l, 1))
		assert.Equal(t, "30", balanceOf(t, l, 2))

		reused := *op
		reused.Amount = decimal.NewFromInt(31)
		_, err = l.PostOperation(ctx, &reused)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		l := newLedger(testAccounts(), nil)
		for id := int64(1); id <= 3; id++ {
			_, err := l.PostOperation(ctx, deposit(id, "100"))
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 300; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from := int64(i%3) + 1
				to := int64((i+1)%3) + 1
				// 餘額不足是預期的結果，其他錯誤才是問題
				_, err := l.PostOperation(ctx, transfer(from, to, "7"))
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				}
			}(i)
		}
		wg.Wait()

		total := decimal.Zero
		for id := int64(1); id <= 3; id++ {
			account, ops, err := l.AccountHistory(ctx, id)
			require.NoError(t, err)
			assert.False(t, account.Balance.IsNegative())
			assert.True(t, account.Balance.Equal(domain.Fold(ops, id, decimal.Zero)), "user %d", id)
			total = total.Add(account.Balance)
		}
		assert.Equal(t, "300", total.String())
	})
}

func TestConcurrentWithdrawNeverOverdraws(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		l := newLedger(testAccounts(), nil)
		_, err := l.PostOperation(ctx, deposit(1, "100"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.PostOperation(ctx, withdraw(1, "3")); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 33, succeeded)
		assert.Equal(t, "1", balanceOf(t, l, 1))
	})
}

func TestRecoverFromWAL(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "wal.log")

		w, err := wal.NewWAL(path)
		require.NoError(t, err)
		t.Cleanup(func() { w.Close() })
		l := newLedger(testAccounts(), w)
		_, err = l.PostOperation(ctx, deposit(1, "100"))
		require.NoError(t, err)
		replayed := transfer(1, 2, "40")
		_, err = l.PostOperation(ctx, replayed)
		require.NoError(t, err)
		_, err = l.PostOperation(ctx, withdraw(2, "500"))
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		// 重新開啟 WAL 建立新的帳本
		w2, err := wal.NewWAL(path)
		require.NoError(t, err)
		t.Cleanup(func() { w2.Close() })
		recovered := newLedger(testAccounts(), w2)

		assert.Equal(t, 2, w2.Records())
		assert.Equal(t, "60", balanceOf(t, recovered, 1))
		assert.Equal(t, "40", balanceOf(t, recovered, 2))

		// 恢復後去重仍然有效
		again := *replayed
		p, err := recovered.PostOperation(ctx, &again)
		require.NoError(t, err)
		assert.True(t, p.Replayed)

		next, err := recovered.PostOperation(ctx, deposit(3, "1"))
		require.NoError(t, err)
		assert.Equal(t, uint64(3), next.Operation.Sequence)
	})
}

func TestAccountHistoryIncludesIncomingTransfers(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger func([]domain.Account, *wal.WAL) usecase.Ledger) {
		ctx := context.Background()
		l := newLedger(testAccounts(), nil)
		_, err := l.PostOperation(ctx, deposit(1, "20"))
		require.NoError(t, err)
		_, err = l.PostOperation(ctx, transfer(1, 2, "5"))
		require.NoError(t, err)

		account, ops, err := l.AccountHistory(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "5", account.Balance.String())
		require.Len(t, ops, 1)
		assert.Equal(t, domain.OperationTypeTransfer, ops[0].Type)

		found, err := l.FindAccounts(ctx, []int64{1, 2, 42})
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})
}

func TestNewBookRejectsDuplicateAccounts(t *testing.T) {
	accounts := append(testAccounts(), *domain.NewAccount(1, "Dup", "Licate"))
	_, err := NewMutexLedger(accounts, nil)
	assert.Error(t, err)
}

func TestSequencedLedgerStopped(t *testing.T) {
	l, err := NewSequencedLedger(testAccounts(), nil, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	<-l.Done()

	_, err = l.PostOperation(context.Background(), deposit(1, "1"))
	assert.ErrorIs(t, err, ErrLedgerStopped)
}

func TestLoadAllAccountsSorted(t *testing.T) {
	l, err := NewMutexLedger([]domain.Account{*domain.NewAccount(3, "C", "C"), *domain.NewAccount(1, "A", "A")}, nil)
	require.NoError(t, err)
	accounts, err := l.LoadAllAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, int64(1), accounts[0].ID)
	assert.Equal(t, int64(3), accounts[1].ID)
}

func TestCardDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewCardDirectory([]domain.Card{{ID: 1, OwnerID: 1, Brand: "visa", Last4: "4242"}})

	card, err := d.FindActiveCard(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "4242", card.Last4)

	_, err = d.FindActiveCard(ctx, 1, 2)
	assert.ErrorIs(t, err, domain.ErrCardNotFound)

	d.Remove(1, time.Now())
	_, err = d.FindActiveCard(ctx, 1, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := d.FindCards(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Contains(t, found, int64(1))
	assert.True(t, found[1].Summary().Deleted)
}
