package destiny

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config 顶层配置
type Config struct {
	Draw           *DrawConfig           `mapstructure:"draw"`
	Reading        *ReadingConfig        `mapstructure:"reading"`
	Cache          *CacheConfig          `mapstructure:"cache"`
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Logging        *LoggingConfig        `mapstructure:"logging"`
}

// Validate 校验全部配置, 汇总所有违规项
func (c *Config) Validate() error {
	if c.Draw == nil || c.Reading == nil || c.Cache == nil || c.CircuitBreaker == nil || c.Logging == nil {
		return ErrConfigInvalid.WithDetails("all sections are required")
	}

	var errs []string
	if err := c.Draw.Rules().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Draw.SettleDuration < 0 || c.Draw.SettleDuration > MaxSettleDuration {
		errs = append(errs, fmt.Sprintf("draw.settle_duration must be between 0 and %v", MaxSettleDuration))
	}
	if err := c.Reading.validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			errs = append(errs, "cache.addr is required when the cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, "cache.ttl must be positive")
		}
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
			errs = append(errs, "circuit_breaker.failure_ratio must be in (0, 1]")
		}
	}
	if err := c.Logging.validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return ErrConfigInvalid.WithDetails(strings.Join(errs, "; "))
	}
	return nil
}

// DrawConfig 抽号规则配置
type DrawConfig struct {
	PrimaryCount   int           `mapstructure:"primary_count"`
	PrimaryMax     int           `mapstructure:"primary_max"`
	BonusMax       int           `mapstructure:"bonus_max"`
	HistorySize    int           `mapstructure:"history_size"`
	SettleDuration time.Duration `mapstructure:"settle_duration"`
}

// Rules 转换为抽号规则
func (d *DrawConfig) Rules() Rules {
	return Rules{
		PrimaryCount: d.PrimaryCount,
		PrimaryMax:   d.PrimaryMax,
		BonusMax:     d.BonusMax,
		HistorySize:  d.HistorySize,
	}
}

// DefaultDrawConfig 返回默认抽号配置
func DefaultDrawConfig() *DrawConfig {
	return &DrawConfig{
		PrimaryCount:   DefaultPrimaryCount,
		PrimaryMax:     DefaultPrimaryMax,
		BonusMax:       DefaultBonusMax,
		HistorySize:    DefaultHistorySize,
		SettleDuration: DefaultSettleDuration,
	}
}

// ReadingConfig 解读服务配置
type ReadingConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	MaxTokens         int64         `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	FallbackSilent    string        `mapstructure:"fallback_silent"`
	FallbackTurbulent string        `mapstructure:"fallback_turbulent"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	Burst             int           `mapstructure:"burst"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
}

func (r *ReadingConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	var errs []string
	if r.Model == "" {
		errs = append(errs, "reading.model is required")
	}
	if r.MaxTokens <= 0 {
		errs = append(errs, "reading.max_tokens must be positive")
	}
	if r.Timeout <= 0 {
		errs = append(errs, "reading.timeout must be positive")
	}
	if r.RatePerSecond < 0 || r.Burst < 0 {
		errs = append(errs, "reading.rate_per_second and reading.burst cannot be negative")
	}
	if r.RetryAttempts < 0 || r.RetryAttempts > MaxRetryAttempts {
		errs = append(errs, fmt.Sprintf("reading.retry_attempts must be between 0 and %d", MaxRetryAttempts))
	}
	if r.RetryInterval < 0 {
		errs = append(errs, "reading.retry_interval cannot be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// DefaultReadingConfig 返回默认解读配置
func DefaultReadingConfig() *ReadingConfig {
	return &ReadingConfig{
		Enabled:           true,
		Model:             DefaultReadingModel,
		MaxTokens:         DefaultReadingMaxTokens,
		Timeout:           DefaultReadingTimeout,
		FallbackSilent:    FallbackSilent,
		FallbackTurbulent: FallbackTurbulent,
		RatePerSecond:     DefaultReadingRatePerSecond,
		Burst:             DefaultReadingBurst,
		RetryAttempts:     DefaultRetryAttempts,
		RetryInterval:     DefaultRetryInterval,
	}
}

// CacheConfig 解读缓存 (Redis) 配置
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`

	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultCacheConfig 返回默认缓存配置, 默认关闭
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:      false,
		KeyPrefix:    ReadingKeyPrefix,
		TTL:          DefaultReadingCacheTTL,
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
	}
}

// NewRedisClientFromConfig 从配置创建 Redis 客户端
func NewRedisClientFromConfig(config *CacheConfig) *redis.Client {
	if config == nil {
		config = DefaultCacheConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

func (l *LoggingConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// DefaultLoggingConfig 返回默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{Level: "info", Format: "json"}
}

// DefaultConfig 返回全部默认配置
func DefaultConfig() *Config {
	return &Config{
		Draw:           DefaultDrawConfig(),
		Reading:        DefaultReadingConfig(),
		Cache:          DefaultCacheConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Logging:        DefaultLoggingConfig(),
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper  *viper.Viper
	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	v := viper.New()

	v.SetConfigName("destiny")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/destiny")
	v.AddConfigPath("$HOME/.destiny")

	v.SetEnvPrefix("DESTINY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cm := &ConfigManager{viper: v}
	cm.setDefaults()
	return cm
}

// NewConfigManagerFromFile 使用指定配置文件创建配置管理器
func NewConfigManagerFromFile(path string) *ConfigManager {
	cm := NewConfigManager()
	cm.viper.SetConfigFile(path)
	return cm
}

// NewDefaultConfigManager 创建已填充默认配置的管理器, 不读取文件
func NewDefaultConfigManager() *ConfigManager {
	cm := NewConfigManager()
	cm.config = DefaultConfig()
	return cm
}

// LoadConfig 加载配置: 默认值 < 配置文件 < 环境变量
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	if err := cm.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在时使用默认值和环境变量
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

func (cm *ConfigManager) decode() (*Config, error) {
	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	d := DefaultConfig()

	cm.viper.SetDefault("draw.primary_count", d.Draw.PrimaryCount)
	cm.viper.SetDefault("draw.primary_max", d.Draw.PrimaryMax)
	cm.viper.SetDefault("draw.bonus_max", d.Draw.BonusMax)
	cm.viper.SetDefault("draw.history_size", d.Draw.HistorySize)
	cm.viper.SetDefault("draw.settle_duration", d.Draw.SettleDuration)

	cm.viper.SetDefault("reading.enabled", d.Reading.Enabled)
	cm.viper.SetDefault("reading.api_key", "")
	cm.viper.SetDefault("reading.model", d.Reading.Model)
	cm.viper.SetDefault("reading.max_tokens", d.Reading.MaxTokens)
	cm.viper.SetDefault("reading.timeout", d.Reading.Timeout)
	cm.viper.SetDefault("reading.fallback_silent", d.Reading.FallbackSilent)
	cm.viper.SetDefault("reading.fallback_turbulent", d.Reading.FallbackTurbulent)
	cm.viper.SetDefault("reading.rate_per_second", d.Reading.RatePerSecond)
	cm.viper.SetDefault("reading.burst", d.Reading.Burst)
	cm.viper.SetDefault("reading.retry_attempts", d.Reading.RetryAttempts)
	cm.viper.SetDefault("reading.retry_interval", d.Reading.RetryInterval)

	cm.viper.SetDefault("cache.enabled", d.Cache.Enabled)
	cm.viper.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	cm.viper.SetDefault("cache.ttl", d.Cache.TTL)
	cm.viper.SetDefault("cache.addr", d.Cache.Addr)
	cm.viper.SetDefault("cache.password", d.Cache.Password)
	cm.viper.SetDefault("cache.db", d.Cache.DB)
	cm.viper.SetDefault("cache.pool_size", d.Cache.PoolSize)
	cm.viper.SetDefault("cache.min_idle_conns", d.Cache.MinIdleConns)
	cm.viper.SetDefault("cache.max_retries", d.Cache.MaxRetries)
	cm.viper.SetDefault("cache.dial_timeout", d.Cache.DialTimeout)
	cm.viper.SetDefault("cache.read_timeout", d.Cache.ReadTimeout)
	cm.viper.SetDefault("cache.write_timeout", d.Cache.WriteTimeout)

	cm.viper.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	cm.viper.SetDefault("circuit_breaker.name", d.CircuitBreaker.Name)
	cm.viper.SetDefault("circuit_breaker.max_requests", d.CircuitBreaker.MaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", d.CircuitBreaker.Interval)
	cm.viper.SetDefault("circuit_breaker.timeout", d.CircuitBreaker.Timeout)
	cm.viper.SetDefault("circuit_breaker.failure_ratio", d.CircuitBreaker.FailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", d.CircuitBreaker.MinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", d.CircuitBreaker.OnStateChange)

	cm.viper.SetDefault("logging.level", d.Logging.Level)
	cm.viper.SetDefault("logging.format", d.Logging.Format)
}

// WatchConfig 监听配置文件变化; 无效的新配置会被丢弃并保留旧配置
func (cm *ConfigManager) WatchConfig(callback func(*Config), logger Logger) {
	if logger == nil {
		logger = NewSilentLogger()
	}

	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config, err := cm.decode()
		if err != nil {
			logger.Error("Ignoring config change from %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		logger.Info("Config reloaded from %s (%s)", e.Name, e.Op)
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ReloadConfig 重新加载配置
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }
