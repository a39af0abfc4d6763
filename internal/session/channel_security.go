package session

import (
	"context"
	"crypto/tls"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

// TokenFetcher obtains a new access token.
type TokenFetcher interface {
	GetAuthToken(ctx context.Context) (string, error)
}

// ChannelSecurity decides how channels to a service are secured and owns
// the lifetime of the access token used on them.
type ChannelSecurity struct {
	cfg     *SecurityConfig
	fetcher TokenFetcher
	lggr    *zap.SugaredLogger

	mu    sync.Mutex
	token string
}

// NewChannelSecurity creates the security for channels described by cfg.
// A nil cfg (or one without an auth domain) means plaintext channels
// without credentials. fetcher may be nil, in which case a
// ServiceAccessor is built from cfg and accessorOpts.
func NewChannelSecurity(cfg *SecurityConfig, fetcher TokenFetcher, accessorOpts AccessorOptions) *ChannelSecurity {
	if fetcher == nil && cfg.Secured() {
		fetcher = NewServiceAccessor(cfg, accessorOpts)
	}
	return &ChannelSecurity{
		cfg:     cfg,
		fetcher: fetcher,
		lggr:    logger.OrNop(accessorOpts.Logger).Named("session"),
	}
}

// NeedsCredentials reports whether channels carry a bearer token.
func (s *ChannelSecurity) NeedsCredentials() bool {
	return s.cfg.Secured()
}

// AuthHostOverride returns the configured override, or "".
func (s *ChannelSecurity) AuthHostOverride() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.AuthHostOverride
}

// HasToken reports whether a token is cached.
func (s *ChannelSecurity) HasToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// ResetToken drops the cached token; the next Token call fetches a new one.
func (s *ChannelSecurity) ResetToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Token returns the cached token, fetching one first when there is none.
func (s *ChannelSecurity) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	s.lggr.Debug("fetching access token")
	token, err := s.fetcher.GetAuthToken(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	return token, nil
}

// TokenSource adapts the cached token to an oauth2.TokenSource.
func (s *ChannelSecurity) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, security: s}
}

type tokenSource struct {
	ctx      context.Context //nolint:containedctx // oauth2.TokenSource has no context parameter
	security *ChannelSecurity
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.security.Token(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// DialOptions returns the transport credentials and interceptors for a new
// channel. For secured channels the token is fetched here, so connection
// attempts fail early on bad credentials.
func (s *ChannelSecurity) DialOptions(ctx context.Context) ([]grpc.DialOption, error) {
	if !s.NeedsCredentials() {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}

	if _, err := s.Token(ctx); err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(authTokenInterceptor(s.TokenSource(context.WithoutCancel(ctx)))),
	}
	if s.cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			ServerName: s.cfg.AuthHostOverride,
			MinVersion: tls.VersionTLS12,
		})))
	}
	return opts, nil
}

func authTokenInterceptor(source oauth2.TokenSource) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		token, err := source.Token()
		if err != nil {
			return err
		}

		return invoker(
			metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token.AccessToken),
			method, req, reply, cc, opts...,
		)
	}
}
