// Package config defines the oracle bridge configuration and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORACLE_* environment variables.
type Config struct {
	Runtime  RuntimeConfig  `toml:"runtime"`
	Apply    ApplyConfig    `toml:"apply"`
	Provider ProviderConfig `toml:"provider"`
	Wallet   WalletConfig   `toml:"wallet"`
	Resolve  ResolveConfig  `toml:"resolve"`
	Sources  []RestSource   `toml:"source"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Delay    duration       `toml:"delay"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RuntimeConfig holds the contract runtime REST endpoint and scan parameters.
type RuntimeConfig struct {
	BaseURL  string   `toml:"base_url"`
	PageSize int      `toml:"page_size"`
	Tags     []string `toml:"tags"`
}

// ApplyConfig holds the apply-computation service endpoint.
type ApplyConfig struct {
	BaseURL string `toml:"base_url"`
}

// ProviderConfig holds the ledger/wallet provider connection parameters.
type ProviderConfig struct {
	Kind    string `toml:"kind"`
	Network string `toml:"network"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// WalletConfig holds the service's payment credentials. The signing key is an
// ed25519 key, either inline as hex or loaded from a file.
type WalletConfig struct {
	Address        string `toml:"address"`
	SigningKeyHex  string `toml:"signing_key"`
	SigningKeyPath string `toml:"signing_key_path"`
}

// ResolveConfig declares which choices this service answers and how. The two
// method families are not mutually exclusive, but at least one must be
// configured, and no choice name may be claimed by more than one method.
type ResolveConfig struct {
	Address AddressMethod `toml:"address"`
	Roles   []RoleMethod  `toml:"role"`
}

// AddressMethod answers choices owned directly by the service's own address,
// restricted to an allowlist of choice names.
type AddressMethod struct {
	Enabled     bool     `toml:"enabled"`
	ChoiceNames []string `toml:"choice_names"`
}

// RoleMethod answers one choice on behalf of a decentralized oracle whose
// role token this service holds through a bridge validator.
type RoleMethod struct {
	ChoiceName    string `toml:"choice_name"`
	RoleToken     string `toml:"role_token"`
	BridgeAddress string `toml:"bridge_address"`

	// Kind selects the feed datum format: "charli3" or "orcfax".
	Kind          string `toml:"kind"`
	FeedAddress   string `toml:"feed_address"`
	FeedPolicyID  string `toml:"feed_policy_id"`
	FeedAssetName string `toml:"feed_asset_name"`
	FeedName      string `toml:"feed_name"`
}

// RestSource maps one address-resolved choice name to a currency pair on the
// public price API. Invert answers pairs quoted in the opposite direction from
// the API's native quoting.
type RestSource struct {
	ChoiceName string `toml:"choice_name"`
	BaseID     string `toml:"base_id"`
	QuoteID    string `toml:"quote_id"`
	Invert     bool   `toml:"invert"`
}

// StoreConfig holds PostgreSQL connection parameters for the submission audit
// trail. Disabled by default.
type StoreConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters for the instance run lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for cycle report archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Runtime: RuntimeConfig{
			BaseURL:  "http://localhost:3780",
			PageSize: 100,
		},
		Apply: ApplyConfig{
			BaseURL: "http://localhost:3781",
		},
		Provider: ProviderConfig{
			Kind:    "blockfrost",
			Network: "preprod",
		},
		Resolve: ResolveConfig{
			Address: AddressMethod{Enabled: false},
		},
		Store: StoreConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "oraclebridge",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 5,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "oraclebridge-reports",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"tx_submitted", "cycle_failed"},
		},
		Delay:    duration{30 * time.Second},
		Mode:     "loop",
		LogLevel: "info",
	}
}

// blockfrostURLs maps network names to Blockfrost API roots.
var blockfrostURLs = map[string]string{
	"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
	"preprod": "https://cardano-preprod.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
}

// ProviderURL returns the provider base URL, deriving it from the network name
// when base_url is not set explicitly.
func (c *Config) ProviderURL() string {
	if c.Provider.BaseURL != "" {
		return c.Provider.BaseURL
	}
	return blockfrostURLs[strings.ToLower(c.Provider.Network)]
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"loop": true,
	"once": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFeedKinds = map[string]bool{
	"charli3": true,
	"orcfax":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: loop, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Delay.Duration <= 0 {
		errs = append(errs, "delay must be positive")
	}

	if c.Runtime.BaseURL == "" {
		errs = append(errs, "runtime: base_url must not be empty")
	}
	if c.Runtime.PageSize < 1 {
		errs = append(errs, "runtime: page_size must be >= 1")
	}
	if c.Apply.BaseURL == "" {
		errs = append(errs, "apply: base_url must not be empty")
	}

	if c.Provider.Kind != "blockfrost" {
		errs = append(errs, fmt.Sprintf("provider: unknown kind %q (valid: blockfrost)", c.Provider.Kind))
	}
	if c.ProviderURL() == "" {
		errs = append(errs, fmt.Sprintf("provider: unknown network %q and no base_url set", c.Provider.Network))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider: api_key must not be empty")
	}

	if c.Wallet.Address == "" {
		errs = append(errs, "wallet: address must not be empty")
	}
	if c.Wallet.SigningKeyHex == "" && c.Wallet.SigningKeyPath == "" {
		errs = append(errs, "wallet: either signing_key or signing_key_path must be set")
	}

	errs = append(errs, c.validateResolve()...)

	if c.Store.Enabled && strings.TrimSpace(c.Store.DSN) == "" {
		if c.Store.Host == "" {
			errs = append(errs, "store: host must not be empty (or set store.dsn)")
		}
		if c.Store.Database == "" {
			errs = append(errs, "store: database must not be empty")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateResolve enforces the resolve-method invariants: at least one method
// configured, complete per-kind feed parameters, and no choice name claimed by
// more than one method.
func (c *Config) validateResolve() []string {
	var errs []string

	hasAddress := c.Resolve.Address.Enabled && len(c.Resolve.Address.ChoiceNames) > 0
	if c.Resolve.Address.Enabled && len(c.Resolve.Address.ChoiceNames) == 0 {
		errs = append(errs, "resolve.address: choice_names must not be empty when enabled")
	}
	if !hasAddress && len(c.Resolve.Roles) == 0 {
		errs = append(errs, "resolve: at least one resolution method must be configured")
	}

	claimed := make(map[string]int)
	if hasAddress {
		for _, name := range c.Resolve.Address.ChoiceNames {
			claimed[name]++
		}
	}

	sources := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ChoiceName == "" || s.BaseID == "" || s.QuoteID == "" {
			errs = append(errs, fmt.Sprintf("source[%d]: choice_name, base_id and quote_id are all required", i))
		}
		if sources[s.ChoiceName] {
			errs = append(errs, fmt.Sprintf("source[%d]: duplicate choice_name %q", i, s.ChoiceName))
		}
		sources[s.ChoiceName] = true
	}
	if hasAddress {
		for _, name := range c.Resolve.Address.ChoiceNames {
			if !sources[name] {
				errs = append(errs, fmt.Sprintf("resolve.address: choice %q has no [[source]] entry", name))
			}
		}
	}

	for i, r := range c.Resolve.Roles {
		prefix := fmt.Sprintf("resolve.role[%d]", i)
		if r.ChoiceName == "" {
			errs = append(errs, prefix+": choice_name must not be empty")
		}
		claimed[r.ChoiceName]++
		if r.RoleToken == "" {
			errs = append(errs, prefix+": role_token must not be empty")
		}
		if r.BridgeAddress == "" {
			errs = append(errs, prefix+": bridge_address must not be empty")
		}
		if !validFeedKinds[r.Kind] {
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q (valid: charli3, orcfax)", prefix, r.Kind))
			continue
		}
		switch r.Kind {
		case "charli3":
			if r.FeedPolicyID == "" || r.FeedAssetName == "" {
				errs = append(errs, prefix+": charli3 requires feed_policy_id and feed_asset_name")
			}
		case "orcfax":
			if r.FeedAddress == "" || r.FeedPolicyID == "" || r.FeedName == "" {
				errs = append(errs, prefix+": orcfax requires feed_address, feed_policy_id and feed_name")
			}
		}
	}

	for name, n := range claimed {
		if n > 1 {
			errs = append(errs, fmt.Sprintf("resolve: choice %q is claimed by %d methods; it must match exactly one", name, n))
		}
	}
	return errs
}
