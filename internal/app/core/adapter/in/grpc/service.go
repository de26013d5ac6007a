package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// 服務直接使用 protobuf well-known types，不需要產生程式碼：
//
//	Withdraw(Struct{channel, amount, phone}) -> Struct{state, transaction_id, balance, psp, ...}
//	GetBalance(Empty) -> Struct{balance}
const (
	ServiceName          = "lyra.withdrawal.v1.WithdrawalService"
	WithdrawFullMethod   = "/" + ServiceName + "/Withdraw"
	GetBalanceFullMethod = "/" + ServiceName + "/GetBalance"
)

// WithdrawalServiceServer gRPC 服務端介面
type WithdrawalServiceServer interface {
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterWithdrawalServiceServer 註冊服務
func RegisterWithdrawalServiceServer(s grpc.ServiceRegistrar, srv WithdrawalServiceServer) {
	s.RegisterService(&WithdrawalServiceDesc, srv)
}

var WithdrawalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WithdrawalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Withdraw", Handler: withdrawHandler},
		{MethodName: "GetBalance", Handler: getBalanceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lyra/withdrawal/v1/withdrawal.proto",
}

func withdrawHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WithdrawalServiceServer).Withdraw(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WithdrawFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WithdrawalServiceServer).Withdraw(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getBalanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WithdrawalServiceServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBalanceFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WithdrawalServiceServer).GetBalance(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// WithdrawalServiceClient gRPC 客戶端
type WithdrawalServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWithdrawalServiceClient(cc grpc.ClientConnInterface) *WithdrawalServiceClient {
	return &WithdrawalServiceClient{cc: cc}
}

func (c *WithdrawalServiceClient) Withdraw(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, WithdrawFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WithdrawalServiceClient) GetBalance(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetBalanceFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
