package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
)

// fakeGateway 依設定回覆，並記錄每次呼叫
type fakeGateway struct {
	mu sync.Mutex

	ussd   func(code string) *domain.PSPResponse
	payout func() *domain.PSPResponse
	wallet func() (map[string]any, error)

	// entered 有值時，每次送 PSP 前會通知並等 release
	entered chan struct{}
	release chan struct{}

	ussdCalls   atomic.Int32
	payoutCalls atomic.Int32
	walletCalls atomic.Int32
	references  []string
	phones      []string
}

func okResponse() *domain.PSPResponse {
	return &domain.PSPResponse{OK: true, Status: http.StatusOK, Body: map[string]any{"status": "success"}}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		ussd:   func(string) *domain.PSPResponse { return okResponse() },
		payout: okResponse,
		wallet: func() (map[string]any, error) { return map[string]any{"balance": 42.0}, nil },
	}
}

func (g *fakeGateway) FetchWalletInfo(ctx context.Context) (map[string]any, error) {
	g.walletCalls.Add(1)
	return g.wallet()
}

func (g *fakeGateway) LaunchUSSD(ctx context.Context, code string, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	g.ussdCalls.Add(1)
	g.track(phone, reference)
	return g.ussd(code)
}

func (g *fakeGateway) SubmitPayout(ctx context.Context, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	g.payoutCalls.Add(1)
	g.track(phone, reference)
	return g.payout()
}

func (g *fakeGateway) track(phone, reference string) {
	g.mu.Lock()
	g.phones = append(g.phones, phone)
	g.references = append(g.references, reference)
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}
}

func (g *fakeGateway) pspCalls() int32 {
	return g.ussdCalls.Load() + g.payoutCalls.Load()
}

type memJournal struct {
	mu      sync.Mutex
	records []domain.WithdrawalRecord
	err     error
}

func (j *memJournal) Record(ctx context.Context, rec *domain.WithdrawalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, *rec)
	return nil
}

func (j *memJournal) Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []domain.WithdrawalRecord{}
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.records[i])
	}
	return out, nil
}

func setup(t *testing.T, initial int64, opts ...usecase.Option) (*usecase.WithdrawUseCase, *fakeGateway, usecase.Ledger) {
	t.Helper()
	ledger := memory.NewMutexLedger(decimal.NewFromInt(initial))
	gw := newFakeGateway()
	return usecase.NewWithdrawUseCase(ledger, gw, zap.NewNop(), opts...), gw, ledger
}

func amount(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func peek(t *testing.T, l usecase.Ledger) decimal.Decimal {
	t.Helper()
	b, err := l.Peek(context.Background())
	require.NoError(t, err)
	return b
}

func TestWithdraw_AirtelConfirmed(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelAirtel, Amount: amount(500), Phone: "074 12 34 56",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateConfirmed, out.State)
	assert.True(t, out.Confirmed())
	assert.True(t, out.Balance.Equal(amount(999_500)))
	assert.True(t, peek(t, ledger).Equal(amount(999_500)))
	assert.Equal(t, int32(1), gw.ussdCalls.Load())
	assert.Equal(t, int32(0), gw.payoutCalls.Load())
	assert.Equal(t, []string{"074123456"}, gw.phones)
	assert.Equal(t, []string{domain.Reference(domain.ChannelAirtel, out.TransactionID)}, gw.references)
	assert.Equal(t, map[string]any{"balance": 42.0}, out.Wallet)
	assert.False(t, out.Ambiguous)
}

func TestWithdraw_MoovRejectedByPSPIsReverted(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)
	gw.ussd = func(code string) *domain.PSPResponse {
		assert.Equal(t, "62", code)
		return &domain.PSPResponse{Status: http.StatusInternalServerError, Body: map[string]any{"message": "down"}}
	}

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelMoov, Amount: amount(500), Phone: "062000000",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateReverted, out.State)
	assert.True(t, out.Balance.Equal(amount(1_000_000)))
	assert.True(t, peek(t, ledger).Equal(amount(1_000_000)))
	assert.Equal(t, http.StatusInternalServerError, out.PSP.Status)
	assert.False(t, out.Ambiguous, "the PSP answered, nothing is ambiguous")
}

func TestWithdraw_TransportFailureIsAmbiguous(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)
	gw.payout = func() *domain.PSPResponse {
		return &domain.PSPResponse{Status: 500, Body: map[string]any{"error": "timeout"}, TransportError: true}
	}

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelGeneric, Amount: amount(700), Phone: "074000000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateReverted, out.State)
	assert.True(t, out.Ambiguous)
	assert.True(t, peek(t, ledger).Equal(amount(1_000_000)))
}

func TestWithdraw_ValidationRejectsBeforeAnyEffect(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)

	for _, req := range []domain.WithdrawalRequest{
		{Channel: domain.ChannelGeneric, Amount: amount(0), Phone: "074000000"},
		{Channel: domain.ChannelGeneric, Amount: amount(-10), Phone: "074000000"},
		{Channel: domain.ChannelAirtel, Amount: amount(10), Phone: "   "},
		{Channel: "99", Amount: amount(10), Phone: "074000000"},
	} {
		_, err := uc.Withdraw(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	assert.True(t, peek(t, ledger).Equal(amount(1_000_000)))
	assert.Zero(t, gw.pspCalls())
	assert.Zero(t, gw.walletCalls.Load())
}

func TestWithdraw_ExtremeExponentDoesNotHoldTheLock(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)

	done := make(chan error, 1)
	go func() {
		_, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
			Channel: domain.ChannelAirtel, Amount: decimal.RequireFromString("1e-100000000"), Phone: "074000000",
		})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.ErrorIs(t, err, domain.ErrAmountPrecision)
	case <-time.After(2 * time.Second):
		t.Fatal("withdrawal with a huge negative exponent did not return")
	}

	// 其他請求不受影響
	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelAirtel, Amount: amount(500), Phone: "074000000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, out.State)
	assert.True(t, peek(t, ledger).Equal(amount(999_500)))
	assert.Equal(t, int32(1), gw.ussdCalls.Load())
}

func TestWithdraw_InsufficientFundsSkipsPSP(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelAirtel, Amount: amount(2_000_000), Phone: "074000000",
	})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, peek(t, ledger).Equal(amount(1_000_000)))
	assert.Zero(t, gw.pspCalls())
}

func TestWithdraw_Disabled(t *testing.T) {
	uc, gw, _ := setup(t, 1_000_000, usecase.WithWithdrawalsEnabled(false))
	assert.False(t, uc.Enabled())

	_, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelAirtel, Amount: amount(1), Phone: "074000000",
	})
	assert.ErrorIs(t, err, domain.ErrWithdrawalsDisabled)
	assert.Zero(t, gw.pspCalls())
}

func TestWithdraw_WalletEnrichmentFailureIgnored(t *testing.T) {
	uc, gw, _ := setup(t, 1_000_000)
	gw.wallet = func() (map[string]any, error) { return nil, errors.New("wallet down") }

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelGeneric, Amount: amount(100), Phone: "074000000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, out.State)
	assert.Nil(t, out.Wallet)
	assert.Equal(t, int32(1), gw.walletCalls.Load())
}

func TestWithdraw_NilPSPResponseCompensates(t *testing.T) {
	uc, gw, ledger := setup(t, 1000)
	gw.payout = func() *domain.PSPResponse { return nil }

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelGeneric, Amount: amount(100), Phone: "074000000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateReverted, out.State)
	assert.Equal(t, http.StatusInternalServerError, out.PSP.Status)
	assert.True(t, peek(t, ledger).Equal(amount(1000)))
}

func TestWithdraw_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)
	gw.ussd = func(string) *domain.PSPResponse {
		time.Sleep(20 * time.Millisecond)
		return okResponse()
	}

	var wg sync.WaitGroup
	var confirmed, insufficient atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
				Channel: domain.ChannelAirtel, Amount: amount(600_000), Phone: "074000000",
			})
			switch {
			case err == nil && out.Confirmed():
				confirmed.Add(1)
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected result: %v %v", out, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), confirmed.Load())
	assert.Equal(t, int32(1), insufficient.Load())
	assert.Equal(t, int32(1), gw.ussdCalls.Load())
	assert.True(t, peek(t, ledger).Equal(amount(400_000)))
}

func TestWithdraw_RevertedThenRetrySucceeds(t *testing.T) {
	uc, gw, ledger := setup(t, 1_000_000)
	var failFirst atomic.Bool
	failFirst.Store(true)
	gw.payout = func() *domain.PSPResponse {
		if failFirst.CompareAndSwap(true, false) {
			return &domain.PSPResponse{Status: http.StatusBadGateway}
		}
		return okResponse()
	}

	var wg sync.WaitGroup
	results := make(chan *domain.Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
				Channel: domain.ChannelGeneric, Amount: amount(600_000), Phone: "074000000",
			})
			assert.NoError(t, err)
			results <- out
		}()
	}
	wg.Wait()
	close(results)

	states := map[domain.WithdrawalState]int{}
	for out := range results {
		states[out.State]++
	}
	// 第一筆失敗補回後，第二筆看到的是完整餘額
	assert.Equal(t, map[domain.WithdrawalState]int{domain.StateReverted: 1, domain.StateConfirmed: 1}, states)
	assert.True(t, peek(t, ledger).Equal(amount(400_000)))
}

func TestLedgerBalance_WaitsForInFlightWithdrawal(t *testing.T) {
	uc, gw, _ := setup(t, 1_000_000)
	gw.entered = make(chan struct{})
	gw.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
			Channel: domain.ChannelAirtel, Amount: amount(500), Phone: "074000000",
		})
		assert.NoError(t, err)
	}()
	<-gw.entered

	got := make(chan decimal.Decimal, 1)
	go func() {
		b, err := uc.LedgerBalance(context.Background())
		assert.NoError(t, err)
		got <- b
	}()

	select {
	case b := <-got:
		t.Fatalf("balance read %s while withdrawal in flight", b)
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	assert.True(t, (<-got).Equal(amount(999_500)))
	<-done
}

func TestWithdraw_JournalRecords(t *testing.T) {
	j := &memJournal{}
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	uc, gw, _ := setup(t, 1_000_000, usecase.WithJournal(j), usecase.WithClock(func() time.Time { return at }))
	gw.ussd = func(code string) *domain.PSPResponse {
		if code == "62" {
			return &domain.PSPResponse{Status: http.StatusBadRequest}
		}
		return okResponse()
	}

	ok, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{Channel: domain.ChannelAirtel, Amount: amount(500), Phone: "074 00"})
	require.NoError(t, err)
	_, err = uc.Withdraw(context.Background(), domain.WithdrawalRequest{Channel: domain.ChannelMoov, Amount: amount(300), Phone: "062"})
	require.NoError(t, err)
	_, err = uc.Withdraw(context.Background(), domain.WithdrawalRequest{Channel: domain.ChannelMoov, Amount: amount(0), Phone: "062"})
	require.Error(t, err)

	recent, err := uc.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2, "rejected requests are not journaled")

	assert.Equal(t, domain.StateReverted, recent[0].State)
	assert.Equal(t, 400, recent[0].PSPStatus)
	assert.Equal(t, domain.StateConfirmed, recent[1].State)
	assert.Equal(t, ok.TransactionID, recent[1].TransactionID)
	assert.Equal(t, "07400", recent[1].Phone)
	assert.True(t, recent[1].BalanceAfter.Equal(amount(999_500)))
	assert.Equal(t, at, recent[1].CreatedAt)
}

func TestWithdraw_JournalFailureDoesNotChangeOutcome(t *testing.T) {
	j := &memJournal{err: errors.New("disk full")}
	uc, _, ledger := setup(t, 1000, usecase.WithJournal(j))

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{Channel: domain.ChannelGeneric, Amount: amount(100), Phone: "074"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, out.State)
	assert.True(t, peek(t, ledger).Equal(amount(900)))
}

// stoppingLedger 扣款正常，補回時回報帳本已停止
type stoppingLedger struct {
	usecase.Ledger
}

func (l stoppingLedger) Credit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, domain.ErrLedgerStopped
}

func TestWithdraw_FailedCompensationIsJournaled(t *testing.T) {
	j := &memJournal{}
	ledger := stoppingLedger{memory.NewMutexLedger(amount(1000))}
	gw := newFakeGateway()
	gw.ussd = func(string) *domain.PSPResponse {
		return &domain.PSPResponse{Status: http.StatusBadGateway, Body: map[string]any{"message": "upstream"}}
	}
	uc := usecase.NewWithdrawUseCase(ledger, gw, zap.NewNop(), usecase.WithJournal(j))

	out, err := uc.Withdraw(context.Background(), domain.WithdrawalRequest{
		Channel: domain.ChannelMoov, Amount: amount(300), Phone: "062000000",
	})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrLedgerStopped)

	require.Len(t, j.records, 1, "an uncompensated debit must leave an audit record")
	rec := j.records[0]
	assert.Equal(t, domain.StateDebited, rec.State)
	assert.True(t, rec.Ambiguous)
	assert.Equal(t, http.StatusBadGateway, rec.PSPStatus)
	assert.True(t, rec.BalanceAfter.Equal(amount(700)))
	assert.Equal(t, gw.references[0], rec.Reference)
}

func TestRecent_WithoutJournal(t *testing.T) {
	uc, _, _ := setup(t, 1000)
	recent, err := uc.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestBalance(t *testing.T) {
	uc, gw, _ := setup(t, 1_000_000)
	gw.wallet = func() (map[string]any, error) {
		return map[string]any{"data": map[string]any{"solde": "777"}}, nil
	}

	view, err := uc.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(amount(1_000_000)))
	assert.Equal(t, "777", view.WalletBalance)
	assert.NoError(t, view.WalletErr)

	gw.wallet = func() (map[string]any, error) { return nil, errors.New("unreachable") }
	view, err = uc.Balance(context.Background())
	require.NoError(t, err)
	assert.Error(t, view.WalletErr)
	assert.Equal(t, domain.UnknownBalance, view.WalletBalance)
	assert.True(t, view.Balance.Equal(amount(1_000_000)))
}

func TestWithdraw_CanceledCallerStillSettles(t *testing.T) {
	uc, gw, ledger := setup(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	gw.payout = func() *domain.PSPResponse {
		cancel()
		return &domain.PSPResponse{Status: http.StatusBadGateway}
	}

	out, err := uc.Withdraw(ctx, domain.WithdrawalRequest{Channel: domain.ChannelGeneric, Amount: amount(100), Phone: "074"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateReverted, out.State)
	assert.True(t, peek(t, ledger).Equal(amount(1000)))
}
