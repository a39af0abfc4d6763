// health.go implements the "leafctl health" command.
//
// The health command asks a LEAF gRPC service for its status through the
// standard grpc.health.v1 service. Like every LEAF client call it keeps
// retrying while the service is unreachable, until the umbrella timeout
// (--timeout, or session.timeout in the config) expires.

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/leaf-ai/leaf-common/internal/config"
	"github.com/leaf-ai/leaf-common/internal/model"
	"github.com/leaf-ai/leaf-common/internal/session"
	"github.com/leaf-ai/leaf-common/internal/timeout"
)

// healthFlags holds the flag values for the health command.
type healthFlags struct {
	service        string
	timeout        time.Duration
	securityConfig string
}

// healthResult is the JSON output of the health command.
type healthResult struct {
	Target  string `json:"target"`
	Service string `json:"service,omitempty"`
	Status  string `json:"status"`
}

// NewHealthCommand creates the "health" cobra command.
func NewHealthCommand() *cobra.Command {
	flags := &healthFlags{}

	cmd := &cobra.Command{
		Use:   "health TARGET",
		Short: "Check the health of a LEAF gRPC service",
		Long: `Call grpc.health.v1.Health/Check on TARGET (host:port) and print the
serving status. The command fails with exit code 6 when the service does
not answer SERVING before the timeout.

Channels are secured when the security config (--security-config or
session.security_config_file) names an auth domain.

Examples:
  leafctl health localhost:30011
  leafctl health enn.example.com:443 --security-config auth.yaml --timeout 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd, flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.service, "service", "", "Service name to check (default: the whole server)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Umbrella timeout for all retries (0 uses the configured session timeout)")
	cmd.Flags().StringVar(&flags.securityConfig, "security-config", "", "Security config file (YAML, JSON or TOML)")

	return cmd
}

func runHealth(ctx context.Context, cmd *cobra.Command, flags *healthFlags, target string) error {
	settings := appConfig.Session
	if cmd.Flags().Changed("timeout") {
		settings.Timeout = flags.timeout
	}
	if cmd.Flags().Changed("security-config") {
		settings.SecurityConfigFile = flags.securityConfig
	}

	client, err := newClientRetry(settings, target)
	if err != nil {
		return err
	}
	defer client.CloseChannel()

	VerboseLog("Checking health of %s (timeout %s)", target, settings.Timeout)
	status, err := session.CheckHealth(ctx, client, flags.service)
	if err != nil {
		return model.WrapCLIError(model.ExitServiceUnavailable, fmt.Sprintf("health check of %s failed", target), err)
	}

	if err := printHealth(cmd.OutOrStdout(), healthResult{Target: target, Service: flags.service, Status: status.String()}); err != nil {
		return err
	}

	if status != healthpb.HealthCheckResponse_SERVING {
		return model.NewCLIError(model.ExitServiceUnavailable, fmt.Sprintf("%s is %s", target, status))
	}
	return nil
}

// newClientRetry builds the retrying client for target from the session
// settings.
func newClientRetry(settings config.SessionConfig, target string) (*session.ClientRetry, error) {
	umbrella := timeout.New("health "+target, settings.Timeout)

	var security *session.ChannelSecurity
	if settings.SecurityConfigFile != "" {
		secCfg, err := config.LoadSecurityConfig(settings.SecurityConfigFile)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError, "failed to load security configuration", err)
		}
		if secCfg.Secured() {
			if err := secCfg.Validate(); err != nil {
				return nil, model.WrapCLIError(model.ExitConfigError, "invalid security configuration", err)
			}
		}
		security = session.NewChannelSecurity(secCfg, nil, session.AccessorOptions{
			ServiceName:  target,
			PollInterval: settings.PollInterval,
			Umbrella:     umbrella,
			Logger:       lggr,
		})
	}

	// An unknown service name or a server without the health service will
	// not fix itself by waiting, so those codes get limited retries.
	return session.NewClientRetry(session.ClientRetryConfig{
		ServiceName:          target,
		Target:               target,
		CallTimeout:          settings.CallTimeout,
		PollInterval:         settings.PollInterval,
		LimitedRetryCodes:    []codes.Code{codes.NotFound, codes.Unimplemented},
		LimitedRetryAttempts: settings.LimitedRetryAttempts,
		Security:             security,
		Umbrella:             umbrella,
		Logger:               lggr,
	}), nil
}

func printHealth(out io.Writer, result healthResult) error {
	if IsJSONOutput() {
		return printJSON(out, result)
	}

	name := result.Target
	if result.Service != "" {
		name = fmt.Sprintf("%s (%s)", result.Target, result.Service)
	}
	_, err := fmt.Fprintf(out, "%s: %s\n", name, result.Status)
	return err
}
