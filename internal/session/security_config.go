package session

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultScope is requested when SecurityConfig.Scope is empty.
const DefaultScope = "all:enn"

// ErrMissingCredentials reports a SecurityConfig without the credentials
// required to request a token. Retrying cannot fix it.
var ErrMissingCredentials = errors.New("missing security credentials")

// SecurityConfig holds the settings used to secure a gRPC channel.
type SecurityConfig struct {
	// AuthDomain is the token issuer, either a host name (https is
	// assumed) or a base URL.
	AuthDomain   string `mapstructure:"auth_domain" json:"auth_domain" yaml:"auth_domain"`
	AuthClientID string `mapstructure:"auth_client_id" json:"auth_client_id" yaml:"auth_client_id"`
	AuthSecret   string `mapstructure:"auth_secret" json:"auth_secret" yaml:"auth_secret"`
	AuthAudience string `mapstructure:"auth_audience" json:"auth_audience" yaml:"auth_audience"`
	Username     string `mapstructure:"username" json:"username" yaml:"username"`
	Password     string `mapstructure:"password" json:"password" yaml:"password"`
	Scope        string `mapstructure:"scope" json:"scope" yaml:"scope"`

	// AuthHostOverride replaces the host name used for TLS verification
	// and as the channel authority.
	AuthHostOverride string `mapstructure:"auth_host_override" json:"auth_host_override,omitempty" yaml:"auth_host_override,omitempty"`

	// Insecure sends the bearer token over a plaintext channel.
	Insecure bool `mapstructure:"insecure" json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// SourceFileReference names the file the config was read from. It is
	// only used in help messages.
	SourceFileReference string `mapstructure:"source_file_reference" json:"-" yaml:"-"`
}

// Secured reports whether channels need credentials.
func (c *SecurityConfig) Secured() bool {
	return c != nil && c.AuthDomain != ""
}

// Validate returns ErrMissingCredentials naming every empty credential.
func (c *SecurityConfig) Validate() error {
	var missing []string
	for _, field := range []struct{ key, value string }{
		{"auth_client_id", c.AuthClientID},
		{"auth_secret", c.AuthSecret},
		{"username", c.Username},
		{"password", c.Password},
	} {
		if field.value == "" {
			missing = append(missing, field.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s must be set in %s", ErrMissingCredentials, strings.Join(missing, ", "), c.source())
	}
	return nil
}

func (c *SecurityConfig) scope() string {
	if c.Scope == "" {
		return DefaultScope
	}
	return c.Scope
}

func (c *SecurityConfig) source() string {
	if c.SourceFileReference == "" {
		return "<unknown>"
	}
	return c.SourceFileReference
}

// baseURL returns the auth domain as a URL without a trailing slash.
func (c *SecurityConfig) baseURL() string {
	domain := strings.TrimSuffix(c.AuthDomain, "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}
