// Package config loads and validates app config from env, an optional .env file and CLI flags using Viper.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration shared by the login client and the dev OTP backend.
type Config struct {
	// APIURL is the base URL of the OTP backend (e.g. http://localhost:8081). Required by the client.
	APIURL string `mapstructure:"API_URL"`
	// RequestTimeout bounds a single send/verify call (e.g. "10s"). "0" or empty means no timeout.
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`
	// DefaultCountryCode is the calling code preselected on the phone step.
	DefaultCountryCode string `mapstructure:"DEFAULT_COUNTRY_CODE"`
	// LandingRoute is where a verified login is handed off to.
	LandingRoute string `mapstructure:"LANDING_ROUTE"`
	// ResendViaAPI when true makes "resend OTP" call send-otp again instead of simulating success.
	ResendViaAPI bool `mapstructure:"RESEND_VIA_API"`
	// ResendDelay is the simulated resend latency (e.g. "1.5s").
	ResendDelay string `mapstructure:"RESEND_DELAY"`
	// ResendCooldown is how long the resend control stays disabled after a resend (e.g. "30s").
	ResendCooldown string `mapstructure:"RESEND_COOLDOWN"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LokiURL enables pushing login events to Grafana Loki (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaBrokers is a comma-separated broker list; set to publish dev backend events to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic login events are written to.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC"`

	// Dev backend only.

	// HTTPAddr is the address the dev OTP backend listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// OTPTTLValue is how long an issued code stays valid (e.g. "5m").
	OTPTTLValue string `mapstructure:"OTP_TTL"`
	// OTPSendCooldownValue is the minimum wait between two codes for the same phone (e.g. "30s").
	OTPSendCooldownValue string `mapstructure:"OTP_SEND_COOLDOWN"`
	// OTPMaxAttempts is how many wrong codes are accepted before the code is discarded.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPHashCost is the bcrypt cost used to hash codes at rest (4–31).
	OTPHashCost int `mapstructure:"OTP_HASH_COST"`
	// OTPReturnToClient when true exposes GET /dev/otp and skips SMS. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// RedisURL selects the Redis OTP store (e.g. redis://localhost:6379/0); empty uses memory.
	RedisURL string `mapstructure:"REDIS_URL"`
	// SMSLocalAPIKey is the API key for SMS Local. Empty means codes are only logged.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// JWTPrivateKey is the PEM private key (RSA or ECDSA) or path to file; empty generates an ephemeral key.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the session token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Flags in fs (may be nil) are bound by upper-snake name, so --api-url overrides API_URL.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if fields are invalid.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_URL", "")
	v.SetDefault("REQUEST_TIMEOUT", "0s")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "+91")
	v.SetDefault("LANDING_ROUTE", "/home")
	v.SetDefault("RESEND_VIA_API", false)
	v.SetDefault("RESEND_DELAY", "1.5s")
	v.SetDefault("RESEND_COOLDOWN", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "chat-login.events")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_SEND_COOLDOWN", "30s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_HASH_COST", 10)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("JWT_ISSUER", "chat-login")
	v.SetDefault("JWT_AUDIENCE", "chat-app")
	v.SetDefault("JWT_ACCESS_TTL", "15m")

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(flagKey(f.Name), f)
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.OTPHashCost == 0 {
		cfg.OTPHashCost = 10
	}
	if cfg.OTPHashCost < 4 || cfg.OTPHashCost > 31 {
		return nil, errors.New("config: OTP_HASH_COST must be between 4 and 31")
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = 3
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")

	return &cfg, nil
}

// ValidateClient checks the fields the login client cannot run without.
func (c *Config) ValidateClient() error {
	if c.APIURL == "" {
		return errors.New("config: API_URL must be set")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: API_URL must be an absolute URL")
	}
	if c.DefaultCountryCode == "" {
		return errors.New("config: DEFAULT_COUNTRY_CODE must be set")
	}
	return nil
}

// Timeout parses RequestTimeout. Returns 0 (no timeout) if unset, invalid or negative.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// ResendDelayDuration parses ResendDelay. Returns 1.5s if unset or invalid.
func (c *Config) ResendDelayDuration() time.Duration {
	return parseOr(c.ResendDelay, 1500*time.Millisecond)
}

// ResendCooldownSeconds returns ResendCooldown in whole seconds. Returns 30 if unset or invalid.
func (c *Config) ResendCooldownSeconds() int {
	n := int(parseOr(c.ResendCooldown, 30*time.Second) / time.Second)
	if n < 1 {
		n = 1
	}
	return n
}

// OTPTTL parses OTPTTLValue. Returns 5m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return parseOr(c.OTPTTLValue, 5*time.Minute)
}

// OTPSendCooldown parses OTPSendCooldownValue. Returns 30s if unset or invalid.
func (c *Config) OTPSendCooldown() time.Duration {
	return parseOr(c.OTPSendCooldownValue, 30*time.Second)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseOr(c.JWTAccessTTL, 15*time.Minute)
}

// KafkaBrokerList splits KafkaBrokers on commas, dropping empty entries.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// IsDevelopment reports whether APP_ENV selects development defaults (console logs).
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

func parseOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func flagKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
