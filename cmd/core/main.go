package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/JoeShih716/go-wallet-ledger/api/ledgerrpc"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	grpc_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	kafka_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/internal/config"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// store 帳本與卡片來源，close 釋放底層資源
type store struct {
	ledger usecase.Ledger
	cards  usecase.CardGateway
	close  func()
}

func main() {
	configPath := flag.String("config", "", "path to config yaml (default $LEDGER_CONFIG or config/config.yaml)")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load report timezone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化帳本 (依 store.driver 選擇實作)
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to init %s ledger: %v", cfg.Store.Driver, err)
	}
	defer st.close()
	log.Printf("Ledger driver: %s", cfg.Store.Driver)

	// 3. 事件發布 (選用)
	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithLocation(loc),
	}
	if cfg.Kafka.Enabled {
		publisher := kafka_adapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		opts = append(opts, usecase.WithPublisher(publisher))
		log.Printf("Publishing operation events to kafka %v", cfg.Kafka.Brokers)
	}

	// 4. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(st.ledger, st.cards, opts...)

	// 5. 初始化 gRPC Adapter (Driving Adapter)
	grpcServer := grpc_adapter.NewGrpcServer(coreUseCase)

	// 6. 啟動 gRPC Server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpc_adapter.RecoveryInterceptor(logger),
		grpc_adapter.LoggingInterceptor(logger),
	))
	ledgerrpc.RegisterLedgerServiceServer(s, grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus(ledgerrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting gRPC server on %s", cfg.Server.GRPCAddr)
		serveErr <- s.Serve(lis)
	}()

	// Graceful Shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("gRPC server stopped: %v", err)
		}
	}
	log.Println("Shutting down server...")
	healthServer.Shutdown()
	shutdown(s, cfg.Server.ShutdownTimeout)
	log.Println("Server exited")
}

// openStore 依設定建立帳本
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("connect to mysql: %w", err)
		}
		log.Println("Connected to MySQL successfully")
		if cfg.Store.AutoMigrate {
			if err := mysql_adapter.Migrate(dbClient.DB()); err != nil {
				dbClient.Close()
				return nil, err
			}
		}
		return &store{
			ledger: mysql_adapter.NewMySQLLedger(dbClient),
			cards:  mysql_adapter.NewCardRepository(dbClient),
			close:  func() { dbClient.Close() },
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return &store{
			ledger: postgres_adapter.NewPostgresLedger(db),
			cards:  postgres_adapter.NewCardRepository(db),
			close:  func() { db.Close() },
		}, nil

	case config.DriverMemoryMutex, config.DriverMemorySequenced:
		return openMemoryStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// openMemoryStore 記憶體帳本: 設定檔的帳戶與卡片 + WAL 恢復
func openMemoryStore(ctx context.Context, cfg *config.Config) (*store, error) {
	// 初始化 WAL
	walFile, err := wal.NewWAL(cfg.Store.WALPath)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	accounts := cfg.SeedAccounts(now)
	cards := memory_adapter.NewCardDirectory(cfg.SeedCards(now))

	if cfg.Store.Driver == config.DriverMemorySequenced {
		sequenced, err := memory_adapter.NewSequencedLedger(accounts, walFile, cfg.Store.SequencedBuffer)
		if err != nil {
			walFile.Close()
			return nil, err
		}
		loopCtx, cancel := context.WithCancel(context.Background())
		sequenced.Start(loopCtx)
		logAccounts(ctx, sequenced.LoadAllAccounts, walFile)
		return &store{
			ledger: sequenced,
			cards:  cards,
			close: func() {
				// 先停止核心迴圈並等它把剩餘請求處理完，再關閉 WAL
				cancel()
				<-sequenced.Done()
				walFile.Close()
			},
		}, nil
	}

	mutexLedger, err := memory_adapter.NewMutexLedger(accounts, walFile)
	if err != nil {
		walFile.Close()
		return nil, err
	}
	logAccounts(ctx, mutexLedger.LoadAllAccounts, walFile)
	return &store{
		ledger: mutexLedger,
		cards:  cards,
		close:  func() { walFile.Close() },
	}, nil
}

func logAccounts(ctx context.Context, load func(context.Context) ([]domain.Account, error), w *wal.WAL) {
	accounts, err := load(ctx)
	if err != nil {
		log.Printf("Failed to list accounts: %v", err)
		return
	}
	log.Printf("Loaded %d accounts, recovered %d operations from WAL", len(accounts), w.Records())
}

// shutdown GracefulStop，逾時則強制停止
func shutdown(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Println("Graceful stop timed out, forcing shutdown")
		s.Stop()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
