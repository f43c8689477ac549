package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像里可能没有时区库

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeoutSec  int           `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int           `mapstructure:"write_timeout_sec"`
	IdleTimeoutSec  int           `mapstructure:"idle_timeout_sec"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxInFlight     int64         `mapstructure:"max_in_flight"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type AdminHTTP struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type App struct {
	Name  string    `mapstructure:"name"`
	Env   string    `mapstructure:"env"`
	HTTP  HTTP      `mapstructure:"http"`
	Admin AdminHTTP `mapstructure:"admin"`
}

type LogFile struct {
	Filename   string `mapstructure:"filename"` // 为空则只写 stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type Log struct {
	Level string  `mapstructure:"level"`
	JSON  bool    `mapstructure:"json"`
	File  LogFile `mapstructure:"file"`
}

type JWT struct {
	Secret            string `mapstructure:"secret"`
	Issuer            string `mapstructure:"issuer"`
	AccessTokenTTLMin int    `mapstructure:"access_token_ttl_min"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"` // 为空则用进程内锁
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string `mapstructure:"driver"` // postgres | mysql | sqlite
	DSN                string `mapstructure:"dsn"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_min"`
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
	LogLevel           string `mapstructure:"log_level"`
}

type Ledger struct {
	AutoAcceptMax   time.Duration `mapstructure:"auto_accept_max"`
	DisplayTimezone string        `mapstructure:"display_timezone"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// Location 解析展示时区，失败时回退 UTC
func (l Ledger) Location() *time.Location {
	if l.DisplayTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Admin 管理端登录账号，密码存 bcrypt 哈希
type Admin struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type Config struct {
	App    App    `mapstructure:"app"`
	Log    Log    `mapstructure:"log"`
	JWT    JWT    `mapstructure:"jwt"`
	DB     DB     `mapstructure:"db"`
	Redis  Redis  `mapstructure:"redis"`
	Ledger Ledger `mapstructure:"ledger"`
	Admin  Admin  `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "loan-ledger")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.read_timeout_sec", 10)
	v.SetDefault("app.http.write_timeout_sec", 15)
	v.SetDefault("app.http.idle_timeout_sec", 60)
	v.SetDefault("app.http.request_timeout", "10s")
	v.SetDefault("app.http.max_in_flight", 256)
	v.SetDefault("app.http.rate_limit_rps", 200)
	v.SetDefault("app.http.rate_limit_burst", 400)
	v.SetDefault("app.http.cors_origins", []string{"*"})
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file.filename", "")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "loan-ledger")
	v.SetDefault("jwt.access_token_ttl_min", 60)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:ledger.db")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime_min", 30)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ledger.auto_accept_max", "168h")
	v.SetDefault("ledger.display_timezone", "Europe/Helsinki")
	v.SetDefault("ledger.lock_ttl", "15s")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
}

// Load 读取 yaml，APP_ 前缀的环境变量覆盖同名配置（APP_DB_DSN → db.dsn）。
// 配置文件不存在时只用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil || !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.Ledger.AutoAcceptMax <= 0 {
		return fmt.Errorf("config: ledger.auto_accept_max must be positive")
	}
	if c.Ledger.LockTTL <= 0 {
		return fmt.Errorf("config: ledger.lock_ttl must be positive")
	}
	if c.Ledger.DisplayTimezone != "" {
		if _, err := time.LoadLocation(c.Ledger.DisplayTimezone); err != nil {
			return fmt.Errorf("config: ledger.display_timezone: %w", err)
		}
	}
	return nil
}
