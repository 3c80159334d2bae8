package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-wallet-ledger/api/ledgerrpc"
	grpcpool "github.com/JoeShih716/go-wallet-ledger/pkg/grpc"
)

// 壓測流程: 每個使用者先以自己的卡存入資金，再並發送出提款與互相轉帳，
// 最後對每個使用者執行 Audit，確認重放餘額與儲存餘額一致。
// 預設資料 (config/config.yaml) 中使用者 N 持有卡片 N。
func main() {
	target := flag.String("addr", "localhost:50051", "ledger gRPC address")
	users := flag.Int("users", 3, "number of users, ids 1..N")
	totalCount := flag.Int("n", 10000, "number of random operations")
	concurrency := flag.Int("c", 100, "concurrent requests")
	seedAmount := flag.String("seed", "1000", "initial deposit per user")
	flag.Parse()

	pool := grpcpool.NewPool(grpcpool.WithCallOptions(grpc.CallContentSubtype(ledgerrpc.CodecName)))
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	conn, err := pool.WaitReady(ctx, *target)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := ledgerrpc.NewLedgerServiceClient(conn)

	// 1. 初始資金
	for id := int64(1); id <= int64(*users); id++ {
		reply, err := c.Deposit(ctx, &ledgerrpc.DepositRequest{
			RefID:       uuid.NewString(),
			UserID:      id,
			CardID:      id,
			Amount:      *seedAmount,
			Description: "load test seed",
		})
		if err != nil {
			log.Fatalf("seed deposit for user %d failed: %v", id, err)
		}
		log.Printf("user %d balance %s", id, reply.UpdateBalance)
	}

	// 2. 並發隨機分錄
	var ok, insufficient, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *totalCount; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			err := randomOperation(ctx, c, int64(*users))
			switch {
			case err == nil:
				ok.Add(1)
			case status.Code(err) == codes.FailedPrecondition:
				insufficient.Add(1)
			default:
				failed.Add(1)
				if idx%1000 == 0 {
					log.Printf("operation %d failed: %v", idx, err)
				}
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v\n", *totalCount, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/elapsed.Seconds())
	fmt.Printf("ok=%d insufficient=%d failed=%d\n", ok.Load(), insufficient.Load(), failed.Load())

	// 3. 一致性檢查
	drift := 0
	for id := int64(1); id <= int64(*users); id++ {
		audit, err := c.Audit(ctx, &ledgerrpc.AuditRequest{UserID: id})
		if err != nil {
			log.Fatalf("audit user %d failed: %v", id, err)
		}
		if !audit.Consistent {
			drift++
		}
		fmt.Printf("user %d: stored=%s replayed=%s operations=%d consistent=%t\n",
			id, audit.Stored, audit.Replayed, audit.Operations, audit.Consistent)
	}
	if drift > 0 {
		log.Fatalf("%d users drifted", drift)
	}
}

func randomOperation(ctx context.Context, c *ledgerrpc.LedgerServiceClient, users int64) error {
	from := rand.Int64N(users) + 1
	amount := fmt.Sprintf("%d.%02d", rand.IntN(20)+1, rand.IntN(100))

	if users < 2 || rand.IntN(4) == 0 {
		_, err := c.Withdraw(ctx, &ledgerrpc.WithdrawRequest{
			RefID:       uuid.NewString(),
			UserID:      from,
			CardID:      from,
			Amount:      amount,
			Description: "load test withdraw",
		})
		return err
	}

	to := rand.Int64N(users-1) + 1
	if to >= from {
		to++
	}
	_, err := c.Transfer(ctx, &ledgerrpc.TransferRequest{
		RefID:       uuid.NewString(),
		UserID:      from,
		RecipientID: to,
		Amount:      amount,
		Description: "load test transfer",
	})
	return err
}
