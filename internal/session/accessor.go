package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/timeout"
)

const (
	tokenPath = "/oauth/token"
	jwksPath  = "/.well-known/jwks.json"
	authRealm = "Username-Password-Authentication"

	// DefaultPollInterval is the wait between retries.
	DefaultPollInterval = 15 * time.Second
)

// signatureAlgorithms are the token signatures accepted when parsing.
var signatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
}

// AccessorOptions configures a ServiceAccessor.
type AccessorOptions struct {
	// ServiceName is used in log messages.
	ServiceName string

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Umbrella bounds all retries. Nil means retry forever.
	Umbrella *timeout.Timeout

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *zap.SugaredLogger
}

// ServiceAccessor fetches and verifies access tokens for a service.
type ServiceAccessor struct {
	cfg  *SecurityConfig
	opts AccessorOptions
	lggr *zap.SugaredLogger

	gaveHelp bool
}

// NewServiceAccessor creates an accessor for cfg.
func NewServiceAccessor(cfg *SecurityConfig, opts AccessorOptions) *ServiceAccessor {
	if opts.ServiceName == "" {
		opts.ServiceName = "service"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &ServiceAccessor{
		cfg:  cfg,
		opts: opts,
		lggr: logger.OrNop(opts.Logger).Named("session"),
	}
}

// GetAuthToken requests a token with the password grant and verifies its
// signature against the auth domain's JWKS. Network failures are retried
// until the umbrella timeout; a token that fails verification is not.
func (a *ServiceAccessor) GetAuthToken(ctx context.Context) (string, error) {
	if err := a.cfg.Validate(); err != nil {
		return "", err
	}

	ctx, cancel := a.opts.Umbrella.Context(ctx)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.opts.HTTPClient)

	signed, token, err := a.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	key, err := a.fetchKey(ctx, signed.Signatures[0].Header.KeyID)
	if err != nil {
		return "", err
	}

	if key.Algorithm == "" {
		return "", fmt.Errorf("signing key %q for %s has no algorithm", key.KeyID, a.opts.ServiceName)
	}
	if alg := signed.Signatures[0].Header.Algorithm; alg != key.Algorithm {
		return "", fmt.Errorf("token algorithm %s does not match signing key algorithm %s", alg, key.Algorithm)
	}
	if _, err := signed.Verify(key.Key); err != nil {
		return "", fmt.Errorf("failed to verify token for %s: %w", a.opts.ServiceName, err)
	}

	return token, nil
}

func (a *ServiceAccessor) fetchToken(ctx context.Context) (*jose.JSONWebSignature, string, error) {
	conf := &clientcredentials.Config{
		ClientID:     a.cfg.AuthClientID,
		ClientSecret: a.cfg.AuthSecret,
		TokenURL:     a.cfg.baseURL() + tokenPath,
		Scopes:       []string{a.cfg.scope()},
		EndpointParams: url.Values{
			"grant_type": {"password"},
			"username":   {a.cfg.Username},
			"password":   {a.cfg.Password},
			"audience":   {a.cfg.AuthAudience},
			"realm":      {authRealm},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	type result struct {
		signed *jose.JSONWebSignature
		token  string
	}

	a.gaveHelp = false
	res, err := retry.DoWithData(func() (result, error) {
		tok, err := conf.Token(ctx)
		if err != nil {
			return result{}, err
		}

		signed, err := jose.ParseSigned(tok.AccessToken, signatureAlgorithms)
		if err != nil {
			return result{}, fmt.Errorf("access token is not a signed JWT: %w", err)
		}
		if len(signed.Signatures) == 0 {
			return result{}, errors.New("access token has no signature")
		}
		return result{signed: signed, token: tok.AccessToken}, nil
	}, a.retryOptions(ctx, "Could not get access_token to "+a.opts.ServiceName)...)
	if err != nil {
		return nil, "", a.umbrellaErr(ctx, err)
	}
	return res.signed, res.token, nil
}

func (a *ServiceAccessor) fetchKey(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	a.gaveHelp = false
	key, err := retry.DoWithData(func() (jose.JSONWebKey, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.baseURL()+jwksPath, nil)
		if err != nil {
			return jose.JSONWebKey{}, retry.Unrecoverable(err)
		}

		resp, err := a.opts.HTTPClient.Do(req)
		if err != nil {
			return jose.JSONWebKey{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return jose.JSONWebKey{}, fmt.Errorf("GET %s: %s", jwksPath, resp.Status)
		}

		var set jose.JSONWebKeySet
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("failed to decode JWKS: %w", err)
		}

		keys := set.Key(kid)
		if len(keys) == 0 {
			return jose.JSONWebKey{}, fmt.Errorf("no signing key with kid %q", kid)
		}
		return keys[0], nil
	}, a.retryOptions(ctx, "Could not get rsa_key for "+a.opts.ServiceName)...)
	if err != nil {
		return jose.JSONWebKey{}, a.umbrellaErr(ctx, err)
	}
	return key, nil
}

func (a *ServiceAccessor) retryOptions(ctx context.Context, message string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(a.opts.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(_ uint, err error) {
			a.logRetryHelp(message, err)
		}),
	}
}

// logRetryHelp logs message, adding the help text the first time.
func (a *ServiceAccessor) logRetryHelp(message string, err error) {
	a.lggr.Warnw(message, "err", err)

	if !a.gaveHelp {
		a.lggr.Warnf(`The most likely cause(s) of this are:
    1.  Your security credentials in %s are not entirely correct.
        Please review the contents of that file.
    2.  You are not able to reach outside the perimeter of your firewall.
        This is most likely the case the first time you connect to the %s.
    3.  There is some kind of network outage between your machine and the %s.
        Automatic retries will wait out a temporary problem.`,
			a.cfg.source(), a.opts.ServiceName, a.opts.ServiceName)
		a.gaveHelp = true
	}

	a.lggr.Infof("Retrying in %s.", a.opts.PollInterval)
}

// umbrellaErr prefers the umbrella timeout over the last attempt's error.
func (a *ServiceAccessor) umbrellaErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%s: %w (last error: %v)", a.opts.ServiceName, cause, err)
	}
	return err
}
