package grpc

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
	grpcpool "github.com/JoeShih716/go-mem-payout/pkg/grpc"
)

type stubGateway struct {
	psp *domain.PSPResponse
}

func (g *stubGateway) FetchWalletInfo(ctx context.Context) (map[string]any, error) {
	return map[string]any{"balance": 1.0}, nil
}

func (g *stubGateway) LaunchUSSD(ctx context.Context, code string, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	return g.psp
}

func (g *stubGateway) SubmitPayout(ctx context.Context, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	return g.psp
}

func newTestClient(t *testing.T, gw *stubGateway, opts ...usecase.Option) *WithdrawalServiceClient {
	t.Helper()
	uc := usecase.NewWithdrawUseCase(memory.NewMutexLedger(decimal.NewFromInt(1_000_000)), gw, zap.NewNop(), opts...)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(NewGrpcServer(uc, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	pool := grpcpool.NewPool(
		grpcpool.WithInterceptor(grpcpool.LoggingInterceptor(zap.NewNop())),
		grpcpool.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	t.Cleanup(func() { _ = pool.Close() })

	conn, err := pool.GetConnection("passthrough:///bufnet")
	require.NoError(t, err)

	again, err := pool.GetConnection("passthrough:///bufnet")
	require.NoError(t, err)
	assert.Same(t, conn, again, "pool reuses the connection per target")

	return NewWithdrawalServiceClient(conn)
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestGrpc_WithdrawConfirmed(t *testing.T) {
	gw := &stubGateway{psp: &domain.PSPResponse{OK: true, Status: http.StatusOK, Body: map[string]any{"status": "success"}}}
	c := newTestClient(t, gw)
	ctx := context.Background()

	resp, err := c.Withdraw(ctx, request(t, map[string]any{"channel": "74", "amount": 500, "phone": "074 00 00 00"}))
	require.NoError(t, err)
	f := resp.GetFields()
	assert.Equal(t, "confirmed", f["state"].GetStringValue())
	assert.Equal(t, "999500", f["balance"].GetStringValue())
	assert.Equal(t, float64(200), f["psp_status"].GetNumberValue())
	assert.NotEmpty(t, f["transaction_id"].GetStringValue())
	assert.Equal(t, "success", f["psp"].GetStructValue().GetFields()["status"].GetStringValue())

	bal, err := c.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "999500", bal.GetFields()["balance"].GetStringValue())
}

func TestGrpc_WithdrawReverted(t *testing.T) {
	gw := &stubGateway{psp: &domain.PSPResponse{Status: http.StatusInternalServerError, TransportError: true}}
	c := newTestClient(t, gw)

	resp, err := c.Withdraw(context.Background(), request(t, map[string]any{"channel": "singpay", "amount": "250", "phone": "074"}))
	require.NoError(t, err)
	f := resp.GetFields()
	assert.Equal(t, "reverted", f["state"].GetStringValue())
	assert.Equal(t, "1000000", f["balance"].GetStringValue())
	assert.True(t, f["ambiguous"].GetBoolValue())
	assert.NotContains(t, f, "psp")
}

func TestGrpc_WithdrawErrors(t *testing.T) {
	gw := &stubGateway{psp: &domain.PSPResponse{OK: true, Status: http.StatusOK}}
	c := newTestClient(t, gw)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]any
		code   codes.Code
	}{
		{"unknown channel", map[string]any{"channel": "99", "amount": 1, "phone": "074"}, codes.InvalidArgument},
		{"missing amount", map[string]any{"channel": "74", "phone": "074"}, codes.InvalidArgument},
		{"zero amount", map[string]any{"channel": "74", "amount": 0, "phone": "074"}, codes.InvalidArgument},
		{"missing phone", map[string]any{"channel": "74", "amount": 1}, codes.InvalidArgument},
		{"tiny exponent", map[string]any{"channel": "74", "amount": "1e-100000000", "phone": "074"}, codes.InvalidArgument},
		{"insufficient", map[string]any{"channel": "62", "amount": 2_000_000, "phone": "062"}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Withdraw(ctx, request(t, tt.fields))
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestGrpc_WithdrawDisabled(t *testing.T) {
	gw := &stubGateway{psp: &domain.PSPResponse{OK: true, Status: http.StatusOK}}
	c := newTestClient(t, gw, usecase.WithWithdrawalsEnabled(false))

	_, err := c.Withdraw(context.Background(), request(t, map[string]any{"channel": "74", "amount": 1, "phone": "074"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
