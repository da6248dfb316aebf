package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
	Automation AutomationConfig `yaml:"automation"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	User                  string        `yaml:"user"`
	Password              string        `yaml:"password"`
	Name                  string        `yaml:"name"`
	SSLMode               string        `yaml:"ssl_mode"`
	MaxOpenConns          int           `yaml:"max_open_conns"`
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	ConnMaxLifetime       time.Duration `yaml:"-"`
	ConnMaxIdleTime       time.Duration `yaml:"-"`
	SlowQueryThreshold    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw    string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw    string        `yaml:"conn_max_idle_time"`
	SlowQueryThresholdRaw string        `yaml:"slow_query_threshold"`
}

// RedisConfig は実行ロック用 Redis の設定です。Addr が空の場合は Redis を使いません。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled は Redis が設定されているかを返します。
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RabbitMQConfig は作成通知の発行先です。URL が空の場合は通知しません。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// Enabled は RabbitMQ が設定されているかを返します。
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

// MetricsConfig は Prometheus エンドポイントの設定です。
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// LogConfig はロガーの設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AutomationConfig は自動配信エンジンの設定です。
type AutomationConfig struct {
	// Schedule は日次実行の cron 式です。空の場合はスケジューラを起動しません。
	Schedule       string         `yaml:"schedule"`
	Timezone       string         `yaml:"timezone"`
	UpcomingWindow string         `yaml:"upcoming_window"`
	RunTimeout     time.Duration  `yaml:"-"`
	LockTTL        time.Duration  `yaml:"-"`
	Location       *time.Location `yaml:"-"`
	RunTimeoutRaw  string         `yaml:"run_timeout"`
	LockTTLRaw     string         `yaml:"lock_ttl"`
}

const (
	defaultLockTTL       = 15 * time.Minute
	defaultExchange      = "engagement.events"
	defaultRoutingKey    = "timeline.item.created"
	defaultMetricsPath   = "/metrics"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"
	defaultUpcomingRange = "same_month"

	// Redis が無い場合、3 系統の実行ロックがそれぞれ接続を 1 本保持するため、クエリ用に 1 本以上が必要です。
	minConnsWithAdvisoryLocks = 4
)

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.RabbitMQ.normalize(); err != nil {
		return err
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if err := c.Log.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Automation.validateAndNormalize(); err != nil {
		return err
	}
	if !c.Redis.Enabled() && c.Database.MaxOpenConns > 0 && c.Database.MaxOpenConns < minConnsWithAdvisoryLocks {
		return fmt.Errorf("config: database.max_open_conns must be at least %d when redis is not configured", minConnsWithAdvisoryLocks)
	}

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	slow, err := parseDurationAllowEmpty(d.SlowQueryThresholdRaw)
	if err != nil {
		return fmt.Errorf("config: database.slow_query_threshold: %w", err)
	}
	d.SlowQueryThreshold = slow

	return nil
}

func (r *RabbitMQConfig) normalize() error {
	if !r.Enabled() {
		return nil
	}
	if _, err := url.Parse(r.URL); err != nil {
		return fmt.Errorf("config: rabbitmq.url: %w", err)
	}
	if r.Exchange == "" {
		r.Exchange = defaultExchange
	}
	if r.RoutingKey == "" {
		r.RoutingKey = defaultRoutingKey
	}
	return nil
}

func (l *LogConfig) validateAndNormalize() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
	switch l.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", l.Format)
	}
}

func (a *AutomationConfig) validateAndNormalize() error {
	a.Schedule = strings.TrimSpace(a.Schedule)

	if a.UpcomingWindow == "" {
		a.UpcomingWindow = defaultUpcomingRange
	}

	loc := time.Local
	if a.Timezone != "" {
		l, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return fmt.Errorf("config: automation.timezone: %w", err)
		}
		loc = l
	}
	a.Location = loc

	timeout, err := parseDurationAllowEmpty(a.RunTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: automation.run_timeout: %w", err)
	}
	if timeout < 0 {
		return fmt.Errorf("config: automation.run_timeout must not be negative")
	}
	a.RunTimeout = timeout

	ttl, err := parseDurationAllowEmpty(a.LockTTLRaw)
	if err != nil {
		return fmt.Errorf("config: automation.lock_ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	a.LockTTL = ttl

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
