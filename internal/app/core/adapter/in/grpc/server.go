package grpc

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-wallet-ledger/api/ledgerrpc"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

type GrpcServer struct {
	ledgerrpc.UnimplementedLedgerServiceServer
	core *usecase.CoreUseCase
}

func NewGrpcServer(core *usecase.CoreUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) Deposit(ctx context.Context, req *ledgerrpc.DepositRequest) (*ledgerrpc.OperationReply, error) {
	cmd, err := toDepositCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	receipt, err := s.core.Deposit(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return toOperationReply(receipt), nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *ledgerrpc.WithdrawRequest) (*ledgerrpc.OperationReply, error) {
	cmd, err := toDepositCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	receipt, err := s.core.Withdraw(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return toOperationReply(receipt), nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *ledgerrpc.TransferRequest) (*ledgerrpc.OperationReply, error) {
	// 1. UUID 解析
	refID, err := parseRefID(req.RefID)
	if err != nil {
		return nil, toStatus(err)
	}
	// 2. 金額解析
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	// 3. 執行轉帳
	receipt, err := s.core.Transfer(ctx, usecase.TransferCommand{
		RefID:       refID,
		UserID:      req.UserID,
		RecipientID: req.RecipientID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toOperationReply(receipt), nil
}

func toDepositCommand(req *ledgerrpc.DepositRequest) (usecase.DepositCommand, error) {
	refID, err := parseRefID(req.RefID)
	if err != nil {
		return usecase.DepositCommand{}, err
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return usecase.DepositCommand{}, err
	}
	return usecase.DepositCommand{
		RefID:       refID,
		UserID:      req.UserID,
		CardID:      req.CardID,
		Amount:      amount,
		Description: req.Description,
	}, nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *ledgerrpc.GetBalanceRequest) (*ledgerrpc.GetBalanceReply, error) {
	balance, err := s.core.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerrpc.GetBalanceReply{
		Balance: balance.String(),
	}, nil
}

func (s *GrpcServer) History(ctx context.Context, req *ledgerrpc.HistoryRequest) (*ledgerrpc.HistoryReply, error) {
	filter, err := toHistoryFilter(req, s.core.Location())
	if err != nil {
		return nil, toStatus(err)
	}
	page, err := s.core.History(ctx, req.UserID, filter)
	if err != nil {
		return nil, toStatus(err)
	}
	return toHistoryReply(page), nil
}

func (s *GrpcServer) BalanceReport(ctx context.Context, req *ledgerrpc.BalanceReportRequest) (*ledgerrpc.BalanceReportReply, error) {
	start, err := domain.ParseDate("startDate", req.StartDate, s.core.Location())
	if err != nil {
		return nil, toStatus(err)
	}
	end, err := domain.ParseDate("endDate", req.EndDate, s.core.Location())
	if err != nil {
		return nil, toStatus(err)
	}
	summary, err := s.core.BalanceReport(ctx, req.UserID, start, end)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerrpc.BalanceReportReply{
		StartBalance: summary.StartBalance.String(),
		EndBalance:   summary.EndBalance.String(),
	}, nil
}

func (s *GrpcServer) Audit(ctx context.Context, req *ledgerrpc.AuditRequest) (*ledgerrpc.AuditReply, error) {
	result, err := s.core.Audit(ctx, req.UserID)
	if err != nil && !errors.Is(err, domain.ErrConsistency) {
		return nil, toStatus(err)
	}
	reply := &ledgerrpc.AuditReply{
		Stored:     result.Stored.String(),
		Replayed:   result.Replayed.String(),
		Operations: result.Operations,
		Consistent: err == nil,
	}
	return reply, nil
}

// LoggingInterceptor 記錄每個 RPC 的耗時與結果
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "elapsed", time.Since(start)}
		if err != nil {
			logger.Warn("rpc failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("rpc ok", attrs...)
		}
		return resp, err
	}
}

// RecoveryInterceptor 把 handler 的 panic 轉成 codes.Internal，避免整個行程結束
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("rpc panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

var _ ledgerrpc.LedgerServiceServer = (*GrpcServer)(nil)
