package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"
)

// Verifier storage modes accepted in settings.
const (
	VerifierStorageMemory  = "memory"
	VerifierStorageFile    = "file"
	VerifierStorageKeyring = "keyring"
)

type Config struct {
	Version        string         `yaml:"version"`
	CurrentContext string         `yaml:"current-context,omitempty"`
	OIDCProviders  []OIDCProvider `yaml:"oidc-providers,omitempty"`
	Contexts       []Context      `yaml:"contexts,omitempty"`
	Settings       Settings       `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat    string `yaml:"output-format,omitempty"`
	VerifierStorage string `yaml:"verifier-storage,omitempty"`
	// OpenBrowser controls whether login launches the system browser.
	OpenBrowser *bool         `yaml:"open-browser,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// OIDCProvider describes a Keycloak realm and the public client registered in it.
type OIDCProvider struct {
	Name            string            `yaml:"name"`
	KeycloakURL     string            `yaml:"keycloak-url"`
	Realm           string            `yaml:"realm"`
	ClientID        string            `yaml:"client-id"`
	Scopes          []string          `yaml:"scopes,omitempty"`
	RedirectURI     string            `yaml:"redirect-uri,omitempty"`
	ExtraAuthParams map[string]string `yaml:"extra-auth-params,omitempty"`
	CAFile          string            `yaml:"ca-file,omitempty"`
	InsecureSkipTLS bool              `yaml:"insecure-skip-tls-verify,omitempty"`
	VerifyIDToken   bool              `yaml:"verify-id-token,omitempty"`
	ExchangeTimeout time.Duration     `yaml:"exchange-timeout,omitempty"`
	LoginTimeout    time.Duration     `yaml:"login-timeout,omitempty"`
}

// Context binds an events API server to an identity provider.
type Context struct {
	Name                  string `yaml:"name"`
	Server                string `yaml:"server"`
	OIDCProvider          string `yaml:"oidc-provider"`
	CAFile                string `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool   `yaml:"insecure-skip-tls-verify,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat:    "table",
			VerifierStorage: VerifierStorageFile,
			Timeout:         30 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindContext(name string) (*Context, error) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("context not found: %s", name)
}

func (c *Config) FindOIDCProvider(name string) (*OIDCProvider, error) {
	for i := range c.OIDCProviders {
		if c.OIDCProviders[i].Name == name {
			return &c.OIDCProviders[i], nil
		}
	}
	return nil, fmt.Errorf("oidc provider not found: %s", name)
}

func (c *Config) CurrentContextOrDefault() string {
	if c.CurrentContext != "" {
		return c.CurrentContext
	}
	if len(c.Contexts) > 0 {
		return c.Contexts[0].Name
	}
	return ""
}

// ResolveProvider returns the identity provider a context points at.
func (c *Config) ResolveProvider(ctx *Context) (*OIDCProvider, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	if ctx.OIDCProvider == "" {
		return nil, fmt.Errorf("context %s has no oidc provider", ctx.Name)
	}
	return c.FindOIDCProvider(ctx.OIDCProvider)
}

// OpenBrowser defaults to true.
func (s Settings) OpenBrowserOrDefault() bool {
	if s.OpenBrowser == nil {
		return true
	}
	return *s.OpenBrowser
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	switch c.Settings.VerifierStorage {
	case "", VerifierStorageMemory, VerifierStorageFile, VerifierStorageKeyring:
	default:
		return fmt.Errorf("unsupported verifier-storage %q", c.Settings.VerifierStorage)
	}
	providers := make(map[string]struct{}, len(c.OIDCProviders))
	for _, p := range c.OIDCProviders {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := providers[p.Name]; dup {
			return fmt.Errorf("duplicate oidc provider %s", p.Name)
		}
		providers[p.Name] = struct{}{}
	}
	for _, ctx := range c.Contexts {
		if strings.TrimSpace(ctx.Name) == "" {
			return errors.New("context name cannot be empty")
		}
		if strings.TrimSpace(ctx.Server) == "" {
			return fmt.Errorf("context %s server is required", ctx.Name)
		}
		if _, ok := providers[ctx.OIDCProvider]; !ok {
			return fmt.Errorf("context %s references unknown oidc provider %q", ctx.Name, ctx.OIDCProvider)
		}
	}
	return nil
}

func (p OIDCProvider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("oidc provider name cannot be empty")
	}
	if p.KeycloakURL == "" || p.Realm == "" || p.ClientID == "" {
		return fmt.Errorf("oidc provider %s requires keycloak-url, realm and client-id", p.Name)
	}
	if u, err := url.Parse(p.KeycloakURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("oidc provider %s has an invalid keycloak-url", p.Name)
	}
	if p.RedirectURI != "" {
		u, err := url.Parse(p.RedirectURI)
		if err != nil || u.Scheme != "http" {
			return fmt.Errorf("oidc provider %s redirect-uri must be an http loopback url", p.Name)
		}
		switch u.Hostname() {
		case "127.0.0.1", "localhost", "::1":
		default:
			return fmt.Errorf("oidc provider %s redirect-uri must be an http loopback url", p.Name)
		}
	}
	if p.ExchangeTimeout < 0 || p.LoginTimeout < 0 {
		return fmt.Errorf("oidc provider %s timeouts must not be negative", p.Name)
	}
	return nil
}
