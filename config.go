package gatekeeper

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
)

// Config is the getter surface the package reads its settings through.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetLinkTTL() time.Duration
	GetSessionTTL() time.Duration
	GetAutoApprovedDomains() []string
	GetRedisAddr() string
	GetDebug() bool
}

// ViperConfig is a viper-backed Config. Values come from an optional config
// file overridden by GATEKEEPER_* environment variables.
type ViperConfig struct {
	v *viper.Viper
}

var _ Config = (*ViperConfig)(nil)

// LoadConfig reads configuration from the given file path (optional, pass ""
// to rely on defaults and environment only).
func LoadConfig(path string) (*ViperConfig, error) {
	v := viper.New()

	v.SetDefault("auth.token_expiration", 24)
	v.SetDefault("auth.issuer", "gatekeeper")
	v.SetDefault("auth.audience", []string{})
	v.SetDefault("auth.link_ttl", "15m")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.auto_approved_domains", []string{})
	v.SetDefault("redis.addr", "")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file")
		}
	}

	return &ViperConfig{v: v}, nil
}

func (c *ViperConfig) GetSigningKey() string {
	return c.v.GetString("auth.signing_key")
}

func (c *ViperConfig) GetTokenExpiration() int {
	return c.v.GetInt("auth.token_expiration")
}

func (c *ViperConfig) GetIssuer() string {
	return c.v.GetString("auth.issuer")
}

func (c *ViperConfig) GetAudience() []string {
	return c.v.GetStringSlice("auth.audience")
}

func (c *ViperConfig) GetLinkTTL() time.Duration {
	return c.v.GetDuration("auth.link_ttl")
}

func (c *ViperConfig) GetSessionTTL() time.Duration {
	return c.v.GetDuration("auth.session_ttl")
}

func (c *ViperConfig) GetAutoApprovedDomains() []string {
	return c.v.GetStringSlice("auth.auto_approved_domains")
}

func (c *ViperConfig) GetRedisAddr() string {
	return c.v.GetString("redis.addr")
}

func (c *ViperConfig) GetDebug() bool {
	return c.v.GetBool("debug")
}
