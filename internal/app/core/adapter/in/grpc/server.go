package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
)

type GrpcServer struct {
	core   *usecase.WithdrawUseCase
	logger *zap.Logger
}

func NewGrpcServer(core *usecase.WithdrawUseCase, logger *zap.Logger) *GrpcServer {
	return &GrpcServer{
		core:   core,
		logger: logger,
	}
}

// Withdraw 與 POST /api/retrait/{channel} 相同的流程
//
// PSP 失敗不是 gRPC 錯誤，state 為 reverted 並附上 psp_status
func (s *GrpcServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	// 1. 解析通道
	channel, err := domain.ParseChannel(fields["channel"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// 2. 解析金額 (數字或字串)
	amount, err := amountFromValue(fields["amount"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// 3. 執行出款
	outcome, err := s.core.Withdraw(ctx, domain.WithdrawalRequest{
		Channel: channel,
		Amount:  amount,
		Phone:   fields["phone"].GetStringValue(),
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := map[string]any{
		"transaction_id": outcome.TransactionID.String(),
		"channel":        string(outcome.Channel),
		"state":          string(outcome.State),
		"amount":         outcome.Amount.String(),
		"balance":        outcome.Balance.String(),
		"psp_status":     outcome.PSP.Status,
		"ambiguous":      outcome.Ambiguous,
	}
	if outcome.PSP.Body != nil {
		resp["psp"] = outcome.PSP.Body
	}

	out, err := structpb.NewStruct(resp)
	if err != nil {
		// PSP 回傳了 structpb 無法表示的值，改為不附 body
		s.logger.Warn("psp body not representable", zap.Error(err))
		delete(resp, "psp")
		return structpb.NewStruct(resp)
	}
	return out, nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	balance, err := s.core.LedgerBalance(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"balance": balance.String(),
	})
}

// NewServer 建立已註冊 WithdrawalService 的 grpc.Server
func NewServer(srv *GrpcServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(srv.logger))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterWithdrawalServiceServer(s, srv)
	return s
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()))
		return resp, err
	}
}

func amountFromValue(v *structpb.Value) (decimal.Decimal, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return decimal.NewFromString(strings.TrimSpace(k.StringValue))
	default:
		return decimal.Zero, errors.New("amount is required")
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrWithdrawalsDisabled):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
