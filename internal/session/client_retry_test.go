package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/timeout"
)

// testServer is an in-memory gRPC health server whose calls can be made
// to fail.
type testServer struct {
	lis   *bufconn.Listener
	calls atomic.Int32

	mu       sync.Mutex
	auth     []string
	clientID []string
}

// startServer starts a server; fail, when set, is consulted with the
// 1-based call number before each call is handled.
func startServer(t *testing.T, fail func(n int32) error) *testServer {
	t.Helper()

	ts := &testServer{lis: bufconn.Listen(1 << 20)}
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(
		ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (any, error) {
		n := ts.calls.Add(1)
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ts.mu.Lock()
			ts.auth = append(ts.auth, md.Get("authorization")...)
			ts.clientID = append(ts.clientID, md.Get("x-leaf-client")...)
			ts.mu.Unlock()
		}
		if fail != nil {
			if err := fail(n); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}))
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go func() { _ = srv.Serve(ts.lis) }()
	t.Cleanup(srv.Stop)
	return ts
}

func (ts *testServer) config(t *testing.T) ClientRetryConfig {
	return ClientRetryConfig{
		ServiceName:    "test",
		Target:         "passthrough:///bufnet",
		CallTimeout:    time.Second,
		ConnectTimeout: time.Second,
		PollInterval:   10 * time.Millisecond,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return ts.lis.DialContext(ctx)
			}),
		},
		Logger: logger.Test(t),
	}
}

func (ts *testServer) authHeaders() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.auth...)
}

// countingFetcher hands out token-1, token-2, ...
type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) GetAuthToken(context.Context) (string, error) {
	return fmt.Sprintf("token-%d", f.calls.Add(1)), nil
}

func TestCheckHealth_Serving(t *testing.T) {
	ts := startServer(t, nil)

	got, err := CheckHealth(context.Background(), NewClientRetry(ts.config(t)), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, got)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestCheckHealth_UnknownService(t *testing.T) {
	ts := startServer(t, nil)

	cfg := ts.config(t)
	cfg.LimitedRetryCodes = []codes.Code{codes.NotFound}
	cfg.LimitedRetryAttempts = 1

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "missing")
	require.Error(t, err)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestMustHaveResponse_RetriesUntilSuccess(t *testing.T) {
	ts := startServer(t, func(n int32) error {
		if n <= 2 {
			return status.Error(codes.Unavailable, "starting up")
		}
		return nil
	})

	got, err := CheckHealth(context.Background(), NewClientRetry(ts.config(t)), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, got)
	assert.Equal(t, int32(3), ts.calls.Load())
}

func TestMustHaveResponse_LimitedRetry(t *testing.T) {
	ts := startServer(t, func(int32) error {
		return status.Error(codes.PermissionDenied, "no")
	})

	cfg := ts.config(t)
	cfg.LimitedRetryCodes = []codes.Code{codes.PermissionDenied}
	cfg.LimitedRetryAttempts = 2

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.Error(t, err)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestMustHaveResponse_ShutdownRefusalIsRetried(t *testing.T) {
	ts := startServer(t, func(n int32) error {
		if n <= 3 {
			return status.Error(codes.PermissionDenied, "Service refusing: shutting down")
		}
		return nil
	})

	cfg := ts.config(t)
	cfg.LimitedRetryCodes = []codes.Code{codes.PermissionDenied}
	cfg.LimitedRetryAttempts = 1

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.NoError(t, err)
	assert.Equal(t, int32(4), ts.calls.Load())
}

func TestMustHaveResponse_UnauthenticatedResetsToken(t *testing.T) {
	ts := startServer(t, func(n int32) error {
		if n == 1 {
			return status.Error(codes.Unauthenticated, "token expired")
		}
		return nil
	})

	fetcher := &countingFetcher{}
	cfg := ts.config(t)
	cfg.Security = NewChannelSecurity(&SecurityConfig{AuthDomain: "auth.example.com", Insecure: true}, fetcher, AccessorOptions{})

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, ts.authHeaders())
	assert.True(t, cfg.Security.HasToken())
}

func TestMustHaveResponse_UmbrellaTimeout(t *testing.T) {
	ts := startServer(t, func(int32) error {
		return status.Error(codes.Unavailable, "down")
	})

	cfg := ts.config(t)
	cfg.Umbrella = timeout.New("health", 200*time.Millisecond)

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, ts.calls.Load(), int32(1))
}

func TestMustHaveResponse_MissingCredentials(t *testing.T) {
	ts := startServer(t, nil)

	cfg := ts.config(t)
	cfg.Security = NewChannelSecurity(&SecurityConfig{AuthDomain: "auth.example.com"}, nil, AccessorOptions{})

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, int32(0), ts.calls.Load())
}

func TestMustHaveResponse_SendsMetadata(t *testing.T) {
	ts := startServer(t, nil)

	cfg := ts.config(t)
	cfg.Metadata = map[string]string{"x-leaf-client": "leafctl"}

	_, err := CheckHealth(context.Background(), NewClientRetry(cfg), "")
	require.NoError(t, err)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	assert.Equal(t, []string{"leafctl"}, ts.clientID)
}

func TestMustConnect_Unreachable(t *testing.T) {
	cfg := ClientRetryConfig{
		Target:         "passthrough:///nowhere",
		ConnectTimeout: 20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		Umbrella:       timeout.New("connect", 150*time.Millisecond),
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
				return nil, errors.New("connection refused")
			}),
		},
		Logger: logger.Test(t),
	}
	c := NewClientRetry(cfg)

	conn, err := c.MustConnect(context.Background())
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMustConnect_LeavesChannelOpen(t *testing.T) {
	ts := startServer(t, nil)
	c := NewClientRetry(ts.config(t))

	conn, err := c.MustConnect(context.Background())
	require.NoError(t, err)
	t.Cleanup(c.CloseChannel)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
