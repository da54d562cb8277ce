package destiny

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_LoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "default_config",
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, DefaultRules(), config.Draw.Rules())
				assert.Equal(t, 200*time.Millisecond, config.Draw.SettleDuration)
				assert.Equal(t, DefaultReadingModel, config.Reading.Model)
				assert.Equal(t, FallbackSilent, config.Reading.FallbackSilent)
				assert.False(t, config.Cache.Enabled)
				assert.Equal(t, "localhost:6379", config.Cache.Addr)
				assert.True(t, config.CircuitBreaker.Enabled)
				assert.Equal(t, "info", config.Logging.Level)
			},
		},
		{
			name: "environment_variables",
			env: map[string]string{
				"DESTINY_DRAW_HISTORY_SIZE":       "3",
				"DESTINY_DRAW_SETTLE_DURATION":    "50ms",
				"DESTINY_READING_MODEL":           "claude-sonnet-4-5",
				"DESTINY_READING_RATE_PER_SECOND": "0.5",
				"DESTINY_CACHE_ENABLED":           "true",
				"DESTINY_CACHE_ADDR":              "redis-cluster:6379",
				"DESTINY_LOGGING_FORMAT":          "console",
			},
			validate: func(t *testing.T, config *Config) {
				assert.Equal(t, 3, config.Draw.HistorySize)
				assert.Equal(t, 50*time.Millisecond, config.Draw.SettleDuration)
				assert.Equal(t, "claude-sonnet-4-5", config.Reading.Model)
				assert.Equal(t, 0.5, config.Reading.RatePerSecond)
				assert.True(t, config.Cache.Enabled)
				assert.Equal(t, "redis-cluster:6379", config.Cache.Addr)
				assert.Equal(t, "console", config.Logging.Format)
			},
		},
		{
			name:        "invalid_rules",
			env:         map[string]string{"DESTINY_DRAW_PRIMARY_MAX": "3"},
			expectError: true,
		},
		{
			name:        "invalid_log_level",
			env:         map[string]string{"DESTINY_LOGGING_LEVEL": "verbose"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cm := NewConfigManager()
			config, err := cm.LoadConfig()

			if tt.expectError {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrConfigInvalid)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Same(t, config, cm.GetConfig())

			if tt.validate != nil {
				tt.validate(t, config)
			}
		})
	}
}

const testConfigYAML = `
draw:
  primary_count: 3
  primary_max: 10
  bonus_max: 4
  history_size: 2
  settle_duration: 0s
reading:
  enabled: false
cache:
  enabled: true
  addr: 127.0.0.1:6380
  ttl: 1h
logging:
  level: debug
  format: console
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "destiny.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigManager_FromFile(t *testing.T) {
	cm := NewConfigManagerFromFile(writeConfigFile(t, testConfigYAML))

	config, err := cm.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, Rules{PrimaryCount: 3, PrimaryMax: 10, BonusMax: 4, HistorySize: 2}, config.Draw.Rules())
	assert.Zero(t, config.Draw.SettleDuration)
	assert.False(t, config.Reading.Enabled)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, "127.0.0.1:6380", config.Cache.Addr)
	assert.Equal(t, time.Hour, config.Cache.TTL)
	// 未出现在文件中的键使用默认值
	assert.Equal(t, DefaultReadingModel, config.Reading.Model)
	assert.Equal(t, DefaultCircuitBreakerName, config.CircuitBreaker.Name)

	c, err := NewDrawControllerFromConfig(config)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 4, c.Rules().TicketSize())
}

func TestConfigManager_FromFile_Errors(t *testing.T) {
	_, err := NewConfigManagerFromFile(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)

	_, err = NewConfigManagerFromFile(writeConfigFile(t, "draw: [unclosed")).LoadConfig()
	assert.Error(t, err)
}

func TestConfigManager_WatchConfig(t *testing.T) {
	path := writeConfigFile(t, testConfigYAML)
	cm := NewConfigManagerFromFile(path)
	_, err := cm.LoadConfig()
	require.NoError(t, err)

	var reloads atomic.Int32
	cm.WatchConfig(func(config *Config) {
		if config.Draw.HistorySize == 4 {
			reloads.Add(1)
		}
	}, NewSilentLogger())

	updated := []byte(`
draw:
  primary_count: 3
  primary_max: 10
  bonus_max: 4
  history_size: 4
`)
	require.NoError(t, os.WriteFile(path, updated, 0o600))

	require.Eventually(t, func() bool { return reloads.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 4, cm.GetConfig().Draw.HistorySize)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name         string
		modifyConfig func(*Config)
		expectError  bool
		errorMsg     string
	}{
		{
			name:         "valid_config",
			modifyConfig: func(config *Config) {},
		},
		{
			name:         "missing_section",
			modifyConfig: func(config *Config) { config.Cache = nil },
			expectError:  true,
			errorMsg:     "all sections are required",
		},
		{
			name:         "bonus_pool_empty",
			modifyConfig: func(config *Config) { config.Draw.BonusMax = 0 },
			expectError:  true,
			errorMsg:     "bonus max must be positive",
		},
		{
			name:         "settle_too_long",
			modifyConfig: func(config *Config) { config.Draw.SettleDuration = time.Minute },
			expectError:  true,
			errorMsg:     "draw.settle_duration",
		},
		{
			name:         "reading_without_model",
			modifyConfig: func(config *Config) { config.Reading.Model = "" },
			expectError:  true,
			errorMsg:     "reading.model is required",
		},
		{
			name: "disabled_reading_not_checked",
			modifyConfig: func(config *Config) {
				config.Reading.Enabled = false
				config.Reading.Model = ""
			},
		},
		{
			name:         "too_many_retries",
			modifyConfig: func(config *Config) { config.Reading.RetryAttempts = MaxRetryAttempts + 1 },
			expectError:  true,
			errorMsg:     "reading.retry_attempts",
		},
		{
			name: "cache_without_addr",
			modifyConfig: func(config *Config) {
				config.Cache.Enabled = true
				config.Cache.Addr = ""
			},
			expectError: true,
			errorMsg:    "cache.addr is required",
		},
		{
			name:         "bad_failure_ratio",
			modifyConfig: func(config *Config) { config.CircuitBreaker.FailureRatio = 1.5 },
			expectError:  true,
			errorMsg:     "circuit_breaker.failure_ratio",
		},
		{
			name:         "bad_log_format",
			modifyConfig: func(config *Config) { config.Logging.Format = "xml" },
			expectError:  true,
			errorMsg:     "logging.format",
		},
		{
			name: "multiple_errors_collected",
			modifyConfig: func(config *Config) {
				config.Logging.Level = "loud"
				config.Draw.PrimaryCount = 0
			},
			expectError: true,
			errorMsg:    "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyConfig(config)

			err := config.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfigInvalid)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewDefaultConfigManager(t *testing.T) {
	cm := NewDefaultConfigManager()
	require.NotNil(t, cm.GetConfig())
	assert.NoError(t, cm.GetConfig().Validate())
}

func TestNewRedisClientFromConfig(t *testing.T) {
	config := DefaultCacheConfig()
	config.Addr = "localhost:6390"
	config.DB = 1

	client := NewRedisClientFromConfig(config)
	require.NotNil(t, client)
	defer client.Close()

	assert.Equal(t, "localhost:6390", client.Options().Addr)
	assert.Equal(t, 1, client.Options().DB)

	// 注意: 只测试客户端创建, 不测试实际连接
	assert.NotNil(t, NewRedisClientFromConfig(nil))
}

func BenchmarkConfig_Validation(b *testing.B) {
	config := DefaultConfig()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := config.Validate(); err != nil {
			b.Fatalf("Config validation failed: %v", err)
		}
	}
}
