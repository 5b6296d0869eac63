package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	envFileENV = "ENV_FILE"

	TradingModePaper = "paper"
	TradingModeLive  = "live"

	paperPort = 4004
	livePort  = 4003

	minSecretLen = 32
)

type Gateway struct {
	Host              string
	TradingMode       string
	ClientID          int
	ConnectTimeout    time.Duration
	StopTimeout       time.Duration
	ReconnectInterval time.Duration // 0 disables the watchdog
	BridgePath        string
}

// Port is the gateway API port for the trading mode.
func (g Gateway) Port() int {
	if g.TradingMode == TradingModeLive {
		return livePort
	}
	return paperPort
}

type Auth struct {
	JWTSecret    string
	JWTAlgorithm string
	TokenTTL     time.Duration
	Username     string
	PasswordHash string
}

type Config struct {
	Gateway Gateway
	Auth    Auth

	Service struct {
		HTTPAddr  string
		AdminAddr string
		LogLevel  string
	}

	DB              string
	ArchiveInterval time.Duration

	Telegram struct {
		Token  string
		ChatID int64
	}

	Tracing struct {
		Enabled bool
		Host    string
		Port    int
	}
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("IB_GATEWAY_HOST", "ib-gateway")
	v.SetDefault("TRADING_MODE", TradingModePaper)
	v.SetDefault("IB_CLIENT_ID", 1)
	v.SetDefault("IB_CONNECTION_TIMEOUT", "10")
	v.SetDefault("IB_STOP_TIMEOUT", "5")
	v.SetDefault("IB_RECONNECT_INTERVAL", "30")
	v.SetDefault("IB_BRIDGE_PATH", "/v1/stream")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_EXPIRE_MINUTES", 30)
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("ADMIN_ADDR", ":9100")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ARCHIVE_INTERVAL", "5m")
	v.SetDefault("JAEGER_AGENT_HOST", "localhost")
	v.SetDefault("JAEGER_AGENT_PORT", 6831)

	path := os.Getenv(envFileENV)
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return v, nil
}

// NewConfig reads the full service configuration from the environment and
// the optional env file, and validates it.
func NewConfig() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	var errs error
	cfg := &Config{}

	gw, err := gatewayFrom(v)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	cfg.Gateway = gw

	cfg.Auth = Auth{
		JWTSecret:    v.GetString("JWT_SECRET"),
		JWTAlgorithm: strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		TokenTTL:     time.Duration(v.GetInt("JWT_EXPIRE_MINUTES")) * time.Minute,
		Username:     v.GetString("API_USERNAME"),
		PasswordHash: v.GetString("API_PASSWORD"),
	}
	if err := cfg.Auth.validate(); err != nil {
		errs = multierror.Append(errs, err)
	}

	cfg.Service.HTTPAddr = v.GetString("HTTP_ADDR")
	cfg.Service.AdminAddr = v.GetString("ADMIN_ADDR")
	cfg.Service.LogLevel = v.GetString("LOG_LEVEL")

	cfg.DB = v.GetString("DATABASE_DSN")
	cfg.ArchiveInterval, err = secondsOrDuration(v.GetString("ARCHIVE_INTERVAL"))
	if err != nil || cfg.ArchiveInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("ARCHIVE_INTERVAL: invalid value %q", v.GetString("ARCHIVE_INTERVAL")))
	}

	cfg.Telegram.Token = v.GetString("TELEGRAM_TOKEN")
	cfg.Telegram.ChatID = v.GetInt64("TELEGRAM_CHAT_ID")

	cfg.Tracing.Enabled = v.GetBool("TRACING_ENABLED")
	cfg.Tracing.Host = v.GetString("JAEGER_AGENT_HOST")
	cfg.Tracing.Port = v.GetInt("JAEGER_AGENT_PORT")

	if errs != nil {
		return nil, fmt.Errorf("invalid configuration: %w", errs)
	}
	return cfg, nil
}

// NewGatewayConfig reads only the gateway settings. Used by tools that talk
// to the gateway without serving the API.
func NewGatewayConfig() (Gateway, error) {
	v, err := newViper()
	if err != nil {
		return Gateway{}, err
	}
	gw, err := gatewayFrom(v)
	if err != nil {
		return Gateway{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return gw, nil
}

func gatewayFrom(v *viper.Viper) (Gateway, error) {
	var errs error
	gw := Gateway{
		Host:        v.GetString("IB_GATEWAY_HOST"),
		TradingMode: strings.ToLower(strings.TrimSpace(v.GetString("TRADING_MODE"))),
		BridgePath:  v.GetString("IB_BRIDGE_PATH"),
	}

	if gw.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("IB_GATEWAY_HOST: must not be empty"))
	}
	if gw.TradingMode != TradingModePaper && gw.TradingMode != TradingModeLive {
		errs = multierror.Append(errs, fmt.Errorf("TRADING_MODE: must be %q or %q, got %q", TradingModePaper, TradingModeLive, gw.TradingMode))
	}

	id, err := strconv.Atoi(v.GetString("IB_CLIENT_ID"))
	if err != nil || id < 0 {
		errs = multierror.Append(errs, fmt.Errorf("IB_CLIENT_ID: invalid value %q", v.GetString("IB_CLIENT_ID")))
	}
	gw.ClientID = id

	durations := []struct {
		key      string
		dst      *time.Duration
		allowOff bool
	}{
		{"IB_CONNECTION_TIMEOUT", &gw.ConnectTimeout, false},
		{"IB_STOP_TIMEOUT", &gw.StopTimeout, false},
		{"IB_RECONNECT_INTERVAL", &gw.ReconnectInterval, true},
	}
	for _, d := range durations {
		raw := v.GetString(d.key)
		val, err := secondsOrDuration(raw)
		if err != nil || val < 0 || (val == 0 && !d.allowOff) {
			errs = multierror.Append(errs, fmt.Errorf("%s: invalid value %q", d.key, raw))
			continue
		}
		*d.dst = val
	}

	return gw, errs
}

func (a Auth) validate() error {
	var errs error
	if len(a.JWTSecret) < minSecretLen {
		errs = multierror.Append(errs, fmt.Errorf("JWT_SECRET: must be at least %d characters", minSecretLen))
	}
	switch a.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = multierror.Append(errs, fmt.Errorf("JWT_ALGORITHM: unsupported %q", a.JWTAlgorithm))
	}
	if a.TokenTTL <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("JWT_EXPIRE_MINUTES: must be positive"))
	}
	if a.Username == "" {
		errs = multierror.Append(errs, fmt.Errorf("API_USERNAME: must not be empty"))
	}
	if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("API_PASSWORD: must be a bcrypt hash: %w", err))
	}
	return errs
}

// secondsOrDuration accepts a bare number of seconds ("10", "2.5") or a Go
// duration ("10s", "5m").
func secondsOrDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
