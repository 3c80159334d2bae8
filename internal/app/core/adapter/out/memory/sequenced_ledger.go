package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// ErrLedgerStopped 核心迴圈已停止
var ErrLedgerStopped = errors.New("sequenced ledger is stopped")

// postRequest 分錄請求包裝 channel，讓 PostOperation 可以等待結果
type postRequest struct {
	op     *domain.Operation
	result chan postResult
}

type postResult struct {
	posting *domain.Posting
	err     error
}

// SequencedLedger 單一寫入者的帳本 (LMAX 風格)
//
// 所有分錄經由 channel 交給同一個 goroutine 依序處理，寫入之間不需要競爭帳戶鎖。
// 讀取仍透過 book 的鎖進行，可與寫入同時執行。
type SequencedLedger struct {
	*book
	// 輸送帶 負責接收分錄
	requests chan *postRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	stopped     chan struct{}
	startOnce   sync.Once
}

// NewSequencedLedger 建立一個新的 SequencedLedger 實例，需呼叫 Start 後才會處理分錄
//
// 參數:
//
//	accounts: 初始帳戶
//	wal: Write-Ahead Log 實例，nil 代表不持久化
//	buffer: 輸送帶容量
func NewSequencedLedger(accounts []domain.Account, wal *wal.WAL, buffer int) (*SequencedLedger, error) {
	b, err := newBook(accounts, wal)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = 1000
	}
	return &SequencedLedger{
		book:     b,
		requests: make(chan *postRequest, buffer),
		requestPool: sync.Pool{
			New: func() any {
				return &postRequest{result: make(chan postResult, 1)}
			},
		},
		stopped: make(chan struct{}),
	}, nil
}

// Start 啟動核心引擎 (非同步)，ctx 結束時處理完剩下的請求後停止
func (l *SequencedLedger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// Done 核心迴圈停止後關閉
func (l *SequencedLedger) Done() <-chan struct{} {
	return l.stopped
}

// PostOperation 接收分錄請求
//
// PostOperation(等待) -> Channel -> Run Loop (核心) -> WAL -> 餘額更新 -> Result Channel -> PostOperation(收到結果)
func (l *SequencedLedger) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Posting, error) {
	req := l.requestPool.Get().(*postRequest)
	req.op = op

	select {
	case l.requests <- req:
	case <-l.stopped:
		l.requestPool.Put(req)
		return nil, ErrLedgerStopped
	case <-ctx.Done():
		l.requestPool.Put(req)
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		req.op = nil
		l.requestPool.Put(req)
		return res.posting, res.err
	case <-l.stopped:
		// 迴圈停止前可能已經處理完這筆
		select {
		case res := <-req.result:
			return res.posting, res.err
		default:
			return nil, ErrLedgerStopped
		}
	case <-ctx.Done():
		// 請求已送出，結果仍會寫入 req.result，這個 req 不放回 Pool
		return nil, ctx.Err()
	}
}

func (l *SequencedLedger) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			l.process(req)
		}
	}
}

func (l *SequencedLedger) drain() {
	for {
		select {
		case req := <-l.requests:
			l.process(req)
		default:
			return
		}
	}
}

// process 處理單筆分錄並回傳結果
// 仍然取 slot 鎖，與讀取端 (GetAccount / AccountHistory) 同步
func (l *SequencedLedger) process(req *postRequest) {
	unlock := l.lockSlots(req.op.GetLockIDs())
	posting, err := l.post(req.op)
	unlock()
	req.result <- postResult{posting: posting, err: err}
}

var _ usecase.Ledger = (*SequencedLedger)(nil)
