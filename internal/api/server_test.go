package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"taskcal/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestGRPCHealth(t *testing.T) {
	logger := zerolog.New(io.Discard)
	srv, err := NewGRPCServer(&config.APIConfig{GRPC: config.APIGRPCConfig{Enabled: true, Port: 0}}, &logger)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	addr := fmt.Sprintf("127.0.0.1:%d", srv.listener.Addr().(*net.TCPAddr).Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	srv.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	for _, name := range []string{"unknown", "taskcal.v1.TaskService"} {
		_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		assert.Equal(t, codes.NotFound, status.Code(err), name)
	}
}

func TestGRPCShutdownStopsOnContext(t *testing.T) {
	srv, err := NewGRPCServer(&config.APIConfig{GRPC: config.APIGRPCConfig{Enabled: true, Port: 0}}, nil)
	require.NoError(t, err)
	served := make(chan struct{})
	go func() {
		_ = srv.Serve()
		close(served)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv.Shutdown(ctx)

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}

	chain := ChainUnaryInterceptors(mk("a"), mk("b"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x"}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.New(io.Discard)
	interceptor := RecoveryUnaryInterceptor(&logger)

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
