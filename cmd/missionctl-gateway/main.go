// missionctl-gateway serves the in-process stub gateway over gRPC so that a
// missionctl server can be exercised end to end without a real agent gateway.
// Example: go run ./cmd/missionctl-gateway --addr=:50051
// Then: MISSIONCTL_GATEWAY_TRANSPORT=grpc missionctl serve
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcgo "google.golang.org/grpc"

	"github.com/ankittk/missioncontrol/internal/gateway"
	gwgrpc "github.com/ankittk/missioncontrol/internal/gateway/grpc"
)

func main() {
	addr := flag.String("addr", ":50051", "gRPC listen address")
	delay := flag.Duration("delay", time.Second, "Delay before each scripted session event")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		slog.Error("listen", "addr", *addr, "err", err)
		os.Exit(1)
	}
	srv := grpcgo.NewServer()
	gwgrpc.Register(srv, &gateway.Stub{Delay: *delay})
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	slog.Info("stub gateway listening", "addr", *addr, "service", gwgrpc.ServiceName)
	if err := srv.Serve(lis); err != nil {
		slog.Error("serve", "err", err)
		os.Exit(1)
	}
}
