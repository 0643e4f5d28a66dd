package cli

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	ValidationJWKS          = "jwks"
	ValidationIntrospection = "introspection"
)

type Config struct {
	Debug bool

	ListenAddress   string
	AllowOrigins    []string
	ShutdownTimeout time.Duration

	// Identity provider
	KeycloakURL        string
	Realm              string
	ValidationMethod   string
	RequiredScope      string
	ClientID           string
	ClientSecret       string
	CAFile             string
	InsecureSkipVerify bool
	ProviderTimeout    time.Duration

	// Rate limits; zero disables the limiter.
	IPRateLimit      float64
	SubjectRateLimit float64

	SeedEvents bool
}

// DefaultEnvFile is read by LoadEnvFile when no path is given.
const DefaultEnvFile = ".env"

// LoadEnvFile exports the variables of a dotenv file that are not already set
// in the environment. A missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Parse reads flags from args, with environment variables as defaults.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	config := &Config{}
	var origins string

	fs.BoolVar(&config.Debug, "debug", getEnvBool("DEBUG", false), "Enable debug level logging")
	fs.StringVar(&config.ListenAddress, "listen-address", getEnvString("LISTEN_ADDRESS", ":8080"),
		"The address the events API binds to (host:port)")
	fs.StringVar(&origins, "allow-origins", getEnvString("ALLOW_ORIGINS", ""),
		"Comma separated list of origins allowed by CORS. Empty disables CORS")
	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		"How long to wait for in-flight requests on shutdown")

	fs.StringVar(&config.KeycloakURL, "keycloak-url", getEnvString("KEYCLOAK_URL", "http://localhost:8180"),
		"Base URL of the Keycloak server")
	fs.StringVar(&config.Realm, "realm", getEnvString("KEYCLOAK_REALM", "events"), "Keycloak realm issuing access tokens")
	fs.StringVar(&config.ValidationMethod, "validation-method", getEnvString("TOKEN_VALIDATION_METHOD", ValidationJWKS),
		"How bearer tokens are validated: jwks or introspection")
	fs.StringVar(&config.RequiredScope, "required-scope", getEnvString("REQUIRED_SCOPE", "events-api-access"),
		"Scope every /events request must carry. Empty disables the check")
	fs.StringVar(&config.ClientID, "client-id", getEnvString("KEYCLOAK_CLIENT_ID", ""),
		"Confidential client used for token introspection")
	fs.StringVar(&config.ClientSecret, "client-secret", getEnvString("KEYCLOAK_CLIENT_SECRET", ""),
		"Secret of the introspection client")
	fs.StringVar(&config.CAFile, "ca-file", getEnvString("KEYCLOAK_CA_FILE", ""),
		"PEM bundle used to verify the Keycloak TLS certificate")
	fs.BoolVar(&config.InsecureSkipVerify, "insecure-skip-tls-verify", getEnvBool("KEYCLOAK_INSECURE_SKIP_TLS_VERIFY", false),
		"Skip TLS verification towards Keycloak (development only)")
	fs.DurationVar(&config.ProviderTimeout, "provider-timeout", getEnvDuration("KEYCLOAK_TIMEOUT", 10*time.Second),
		"Timeout for JWKS and introspection requests")

	fs.Float64Var(&config.IPRateLimit, "ip-rate-limit", getEnvFloat("IP_RATE_LIMIT", 10),
		"Requests per second allowed per client IP before authentication. 0 disables")
	fs.Float64Var(&config.SubjectRateLimit, "subject-rate-limit", getEnvFloat("SUBJECT_RATE_LIMIT", 50),
		"Requests per second allowed per token subject. 0 disables")
	fs.BoolVar(&config.SeedEvents, "seed-events", getEnvBool("SEED_EVENTS", true), "Start with a set of demo events")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	config.AllowOrigins = splitList(origins)
	return config, config.Validate()
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.KeycloakURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("keycloak-url %q must be an absolute http(s) URL", c.KeycloakURL)
	}
	if c.Realm == "" {
		return errors.New("realm is required")
	}
	switch c.ValidationMethod {
	case ValidationJWKS:
	case ValidationIntrospection:
		if c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("introspection requires client-id and client-secret")
		}
	default:
		return fmt.Errorf("unknown validation-method %q; use %s or %s", c.ValidationMethod, ValidationJWKS, ValidationIntrospection)
	}
	if c.IPRateLimit < 0 || c.SubjectRateLimit < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

// RealmURL is the issuer of tokens in the configured realm.
func (c *Config) RealmURL() string {
	return strings.TrimRight(c.KeycloakURL, "/") + "/realms/" + url.PathEscape(c.Realm)
}

func (c *Config) JWKSURL() string {
	return c.RealmURL() + "/protocol/openid-connect/certs"
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"listen_address", c.ListenAddress,
		"allow_origins", c.AllowOrigins,
		"keycloak_url", c.KeycloakURL,
		"realm", c.Realm,
		"validation_method", c.ValidationMethod,
		"required_scope", c.RequiredScope,
		"client_id", c.ClientID,
		"client_secret_set", c.ClientSecret != "",
		"insecure_skip_tls_verify", c.InsecureSkipVerify,
		"ip_rate_limit", c.IPRateLimit,
		"subject_rate_limit", c.SubjectRateLimit,
		"seed_events", c.SeedEvents,
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
