package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName gRPC 服務全名
const ServiceName = "ledger.LedgerService"

// LedgerServiceServer 伺服端需要實作的介面
type LedgerServiceServer interface {
	Deposit(context.Context, *DepositRequest) (*OperationReply, error)
	Withdraw(context.Context, *WithdrawRequest) (*OperationReply, error)
	Transfer(context.Context, *TransferRequest) (*OperationReply, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceReply, error)
	History(context.Context, *HistoryRequest) (*HistoryReply, error)
	BalanceReport(context.Context, *BalanceReportRequest) (*BalanceReportReply, error)
	Audit(context.Context, *AuditRequest) (*AuditReply, error)
}

// UnimplementedLedgerServiceServer 嵌入後未實作的方法回傳 Unimplemented
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) Deposit(context.Context, *DepositRequest) (*OperationReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Deposit not implemented")
}
func (UnimplementedLedgerServiceServer) Withdraw(context.Context, *WithdrawRequest) (*OperationReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Withdraw not implemented")
}
func (UnimplementedLedgerServiceServer) Transfer(context.Context, *TransferRequest) (*OperationReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Transfer not implemented")
}
func (UnimplementedLedgerServiceServer) GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceReply, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBalance not implemented")
}
func (UnimplementedLedgerServiceServer) History(context.Context, *HistoryRequest) (*HistoryReply, error) {
	return nil, status.Error(codes.Unimplemented, "method History not implemented")
}
func (UnimplementedLedgerServiceServer) BalanceReport(context.Context, *BalanceReportRequest) (*BalanceReportReply, error) {
	return nil, status.Error(codes.Unimplemented, "method BalanceReport not implemented")
}
func (UnimplementedLedgerServiceServer) Audit(context.Context, *AuditRequest) (*AuditReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Audit not implemented")
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler 解碼請求並串上攔截器
func unaryHandler[Req, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc LedgerService 的描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deposit", Handler: unaryHandler("Deposit", LedgerServiceServer.Deposit)},
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", LedgerServiceServer.Withdraw)},
		{MethodName: "Transfer", Handler: unaryHandler("Transfer", LedgerServiceServer.Transfer)},
		{MethodName: "GetBalance", Handler: unaryHandler("GetBalance", LedgerServiceServer.GetBalance)},
		{MethodName: "History", Handler: unaryHandler("History", LedgerServiceServer.History)},
		{MethodName: "BalanceReport", Handler: unaryHandler("BalanceReport", LedgerServiceServer.BalanceReport)},
		{MethodName: "Audit", Handler: unaryHandler("Audit", LedgerServiceServer.Audit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger",
}

// LedgerServiceClient 客戶端
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*OperationReply, error) {
	return invoke[DepositRequest, OperationReply](ctx, c.cc, "Deposit", in, opts...)
}

func (c *LedgerServiceClient) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*OperationReply, error) {
	return invoke[WithdrawRequest, OperationReply](ctx, c.cc, "Withdraw", in, opts...)
}

func (c *LedgerServiceClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*OperationReply, error) {
	return invoke[TransferRequest, OperationReply](ctx, c.cc, "Transfer", in, opts...)
}

func (c *LedgerServiceClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceReply, error) {
	return invoke[GetBalanceRequest, GetBalanceReply](ctx, c.cc, "GetBalance", in, opts...)
}

func (c *LedgerServiceClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryReply, error) {
	return invoke[HistoryRequest, HistoryReply](ctx, c.cc, "History", in, opts...)
}

func (c *LedgerServiceClient) BalanceReport(ctx context.Context, in *BalanceReportRequest, opts ...grpc.CallOption) (*BalanceReportReply, error) {
	return invoke[BalanceReportRequest, BalanceReportReply](ctx, c.cc, "BalanceReport", in, opts...)
}

func (c *LedgerServiceClient) Audit(ctx context.Context, in *AuditRequest, opts ...grpc.CallOption) (*AuditReply, error) {
	return invoke[AuditRequest, AuditReply](ctx, c.cc, "Audit", in, opts...)
}
