package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpc_adapter "github.com/JoeShih716/go-mem-payout/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-payout/pkg/grpc"
)

func main() {
	target := flag.String("target", "localhost:50051", "gRPC server address")
	total := flag.Int("n", 1000, "total withdrawals to send")
	concurrency := flag.Int("c", 50, "concurrent requests")
	channel := flag.String("channel", "singpay", "payout channel: 74, 62 or singpay")
	amount := flag.String("amount", "100", "amount per withdrawal")
	phone := flag.String("phone", "074 00 00 00", "destination phone")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	pool := grpc.NewPool(grpc.WithInterceptor(grpc.LoggingInterceptor(zl)))
	defer pool.Close()

	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := grpc_adapter.NewWithdrawalServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	before, err := c.GetBalance(ctx)
	if err != nil {
		log.Fatalf("GetBalance failed: %v", err)
	}

	req, err := structpb.NewStruct(map[string]any{
		"channel": *channel,
		"amount":  *amount,
		"phone":   *phone,
	})
	if err != nil {
		log.Fatalf("build request: %v", err)
	}

	var confirmed, reverted, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)

	startTime := time.Now()
	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := c.Withdraw(ctx, req)
			switch {
			case err == nil && resp.GetFields()["state"].GetStringValue() == "confirmed":
				confirmed.Add(1)
			case err == nil:
				reverted.Add(1)
			case status.Code(err) == codes.FailedPrecondition || status.Code(err) == codes.InvalidArgument:
				rejected.Add(1)
			default:
				failed.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	after, err := c.GetBalance(ctx)
	if err != nil {
		log.Fatalf("GetBalance failed: %v", err)
	}

	fmt.Printf("Completed %d withdrawals in %v\n", *total, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(*total)/elapsed.Seconds())
	fmt.Printf("confirmed=%d reverted=%d rejected=%d failed=%d\n",
		confirmed.Load(), reverted.Load(), rejected.Load(), failed.Load())
	fmt.Printf("balance: %s -> %s\n",
		before.GetFields()["balance"].GetStringValue(),
		after.GetFields()["balance"].GetStringValue())
}
