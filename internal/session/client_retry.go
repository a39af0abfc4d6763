package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/timeout"
)

const (
	// DefaultCallTimeout bounds a single RPC attempt.
	DefaultCallTimeout = 30 * time.Second

	// DefaultConnectTimeout bounds waiting for a channel to become ready.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultLimitedRetryAttempts is the number of attempts allowed for
	// status codes in the limited retry set.
	DefaultLimitedRetryAttempts = 3

	// shutdownRefusal appears in the status message of a service that
	// refuses calls because it is shutting down. Such replies are always
	// retried.
	shutdownRefusal = "Service refusing"
)

var errEmptyResponse = errors.New("empty response")

// ClientRetryConfig configures a ClientRetry.
type ClientRetryConfig struct {
	// ServiceName is used in log messages.
	ServiceName string

	// Target is the gRPC target, usually "host:port".
	Target string

	CallTimeout    time.Duration
	ConnectTimeout time.Duration
	PollInterval   time.Duration

	// MaxMessageSize limits sent and received messages. Zero keeps the
	// gRPC defaults.
	MaxMessageSize int

	// LimitedRetryCodes lists the status codes that are retried only
	// LimitedRetryAttempts times. Any other failure is retried until the
	// call succeeds or the umbrella timeout expires.
	LimitedRetryCodes    []codes.Code
	LimitedRetryAttempts int

	// Metadata is sent with every call.
	Metadata map[string]string

	// Security defaults to plaintext channels without credentials.
	Security *ChannelSecurity

	// Umbrella bounds all connection attempts and retries.
	Umbrella *timeout.Timeout

	// DialOptions are appended to the options of every channel.
	DialOptions []grpc.DialOption

	Logger *zap.SugaredLogger
}

// ClientRetry makes gRPC calls to a service that may go up and down while
// the client runs.
//
// No channel is opened on construction. MustHaveResponse opens a new
// channel for every attempt and closes it afterwards; MustConnect leaves
// its channel open for the caller, who must call CloseChannel.
type ClientRetry struct {
	cfg  ClientRetryConfig
	lggr *zap.SugaredLogger

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewClientRetry creates a ClientRetry, filling in defaults.
func NewClientRetry(cfg ClientRetryConfig) *ClientRetry {
	if cfg.ServiceName == "" {
		cfg.ServiceName = cfg.Target
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LimitedRetryAttempts <= 0 {
		cfg.LimitedRetryAttempts = DefaultLimitedRetryAttempts
	}
	if cfg.Security == nil {
		cfg.Security = NewChannelSecurity(nil, nil, AccessorOptions{Logger: cfg.Logger})
	}

	return &ClientRetry{
		cfg:  cfg,
		lggr: logger.OrNop(cfg.Logger).Named("session").With("service", cfg.ServiceName),
	}
}

// Security returns the channel security in use.
func (c *ClientRetry) Security() *ChannelSecurity {
	return c.cfg.Security
}

// MustConnect keeps trying to open a ready channel until it succeeds, the
// umbrella timeout expires or ctx is done. Missing credentials end the
// attempts immediately.
func (c *ClientRetry) MustConnect(ctx context.Context) (*grpc.ClientConn, error) {
	ctx, cancel := c.cfg.Umbrella.Context(ctx)
	defer cancel()

	conn, err := retry.DoWithData(func() (*grpc.ClientConn, error) {
		conn, err := c.connect(ctx)
		if errors.Is(err, ErrMissingCredentials) {
			c.lggr.Errorw("Could not get access token", "target", c.cfg.Target, "err", err)
			c.CloseChannelAndResetToken()
			return nil, retry.Unrecoverable(err)
		}
		if err != nil {
			c.CloseChannel()
			return nil, err
		}
		return conn, nil
	}, c.retryOptions(ctx, func(_ uint, err error) {
		c.lggr.Warnf("Retrying initial connection to %s in %s: %v", c.cfg.ServiceName, c.cfg.PollInterval, err)
	})...)
	if err != nil {
		return nil, c.umbrellaErr(ctx, err)
	}
	return conn, nil
}

// connect makes a single attempt at opening a ready channel.
func (c *ClientRetry) connect(ctx context.Context) (*grpc.ClientConn, error) {
	c.lggr.Infof("Connecting to %s on %s ...", c.cfg.ServiceName, c.cfg.Target)

	securityOpts, err := c.cfg.Security.DialOptions(ctx)
	if err != nil {
		return nil, err
	}

	opts := securityOpts
	if c.cfg.MaxMessageSize > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.cfg.MaxMessageSize),
		))
	}
	if override := c.cfg.Security.AuthHostOverride(); override != "" {
		opts = append(opts, grpc.WithAuthority(override))
	}
	opts = append(opts, c.cfg.DialOptions...)

	c.CloseChannel()

	conn, err := grpc.NewClient(c.cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel to %s: %w", c.cfg.Target, err)
	}
	c.setConn(conn)

	readyCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(readyCtx, conn); err != nil {
		c.lggr.Errorf("Failed to connect to %s on %s after %s.", c.cfg.ServiceName, c.cfg.Target, c.cfg.ConnectTimeout)
		c.CloseChannel()
		return nil, fmt.Errorf("failed to connect to %s: %w", c.cfg.Target, err)
	}

	c.lggr.Infof("Connected to %s on %s.", c.cfg.ServiceName, c.cfg.Target)
	return conn, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return errors.New("channel shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// MustHaveResponse keeps calling the service until call returns a
// non-empty response. Every attempt gets a fresh channel that is closed
// when the attempt ends.
//
// Status codes in the limited retry set end the attempts after
// LimitedRetryAttempts failures, unless the service says it is shutting
// down. Unauthenticated drops the cached token before retrying.
func MustHaveResponse[T proto.Message](
	ctx context.Context,
	c *ClientRetry,
	method string,
	call func(ctx context.Context, conn *grpc.ClientConn) (T, error),
) (T, error) {
	var zero T

	ctx, cancel := c.cfg.Umbrella.Context(ctx)
	defer cancel()

	limitedFailures := 0
	resp, err := retry.DoWithData(func() (T, error) {
		defer c.CloseChannel()

		conn, err := c.MustConnect(ctx)
		if err != nil {
			return zero, retry.Unrecoverable(err)
		}

		callCtx, cancel := context.WithTimeout(c.outgoingContext(ctx), c.cfg.CallTimeout)
		defer cancel()

		resp, err := call(callCtx, conn)
		if err != nil {
			return zero, c.classify(err, &limitedFailures)
		}
		if !resp.ProtoReflect().IsValid() {
			return zero, errEmptyResponse
		}
		return resp, nil
	}, c.retryOptions(ctx, func(_ uint, err error) {
		if status.Code(err) == codes.Unauthenticated {
			return
		}
		c.lggr.Warnf("Exception when calling %s: %v. Retrying in %s.", method, err, c.cfg.PollInterval)
	})...)
	if err != nil {
		return zero, c.umbrellaErr(ctx, err)
	}
	return resp, nil
}

// classify decides whether a failed attempt may be retried.
func (c *ClientRetry) classify(err error, limitedFailures *int) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	if st.Code() == codes.Unauthenticated {
		if c.cfg.Security.HasToken() {
			c.lggr.Info("Security token expired, trying again")
		} else {
			c.lggr.Errorf("Could not get access token for secure communication to %s. "+
				"Check that auth_client_id, auth_secret, username and password are set correctly.", c.cfg.Target)
		}
		c.CloseChannelAndResetToken()
	}

	if slices.Contains(c.cfg.LimitedRetryCodes, st.Code()) && !strings.Contains(st.Message(), shutdownRefusal) {
		*limitedFailures++
		if *limitedFailures >= c.cfg.LimitedRetryAttempts {
			return retry.Unrecoverable(err)
		}
	}
	return err
}

func (c *ClientRetry) outgoingContext(ctx context.Context) context.Context {
	if len(c.cfg.Metadata) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, metadata.New(c.cfg.Metadata))
}

func (c *ClientRetry) retryOptions(ctx context.Context, onRetry retry.OnRetryFunc) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(c.cfg.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
	}
}

// umbrellaErr prefers the umbrella timeout over the last attempt's error.
func (c *ClientRetry) umbrellaErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%s: %w (last error: %v)", c.cfg.ServiceName, cause, err)
	}
	return err
}

func (c *ClientRetry) setConn(conn *grpc.ClientConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// CloseChannel closes the open channel, if any. The token is kept.
func (c *ClientRetry) CloseChannel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// CloseChannelAndResetToken closes the channel and drops the token.
func (c *ClientRetry) CloseChannelAndResetToken() {
	c.CloseChannel()
	c.cfg.Security.ResetToken()
}
