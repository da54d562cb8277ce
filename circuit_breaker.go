package destiny

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker"
)

// CircuitBreakerGenerator 带熔断器的文本生成器
type CircuitBreakerGenerator struct {
	generator TextGenerator

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig
}

// NewCircuitBreakerGenerator 创建带熔断器的文本生成器
func NewCircuitBreakerGenerator(generator TextGenerator, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerGenerator {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	c := &CircuitBreakerGenerator{
		generator: generator,
		logger:    logger,
		config:    config,
	}
	if config.Enabled {
		c.breaker = c.newBreaker()
	}
	return c
}

func (c *CircuitBreakerGenerator) newBreaker() *gobreaker.CircuitBreaker {
	config := c.config
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 请求数达到最小要求且失败率超过阈值时熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// 调用方取消不计为服务失败
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				c.logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	})
}

// Generate 通过熔断器调用文本生成
func (c *CircuitBreakerGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.RLock()
	breaker := c.breaker
	c.mu.RUnlock()

	if breaker == nil {
		return c.generator.Generate(ctx, prompt)
	}

	result, err := breaker.Execute(func() (any, error) {
		return c.generator.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, requests are being rejected")
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitBreakerOpen.WithDetails("too many requests, circuit breaker is half-open")
		}
		return "", err
	}

	return result.(string), nil
}

// GetCircuitBreakerState 获取熔断器状态
func (c *CircuitBreakerGenerator) GetCircuitBreakerState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.breaker == nil {
		return "disabled"
	}

	switch c.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetCircuitBreakerCounts 获取熔断器统计信息
func (c *CircuitBreakerGenerator) GetCircuitBreakerCounts() gobreaker.Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.breaker == nil {
		return gobreaker.Counts{}
	}
	return c.breaker.Counts()
}

// ResetCircuitBreaker 重置熔断器 (gobreaker 没有 Reset 方法, 重新创建实例)
func (c *CircuitBreakerGenerator) ResetCircuitBreaker() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.breaker == nil {
		return
	}
	c.breaker = c.newBreaker()
	c.logger.Info("Circuit breaker '%s' has been reset (recreated)", c.config.Name)
}

// Check 熔断器健康检查
func (c *CircuitBreakerGenerator) Check() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": c.config.Enabled,
	}

	state := c.GetCircuitBreakerState()
	if state == "disabled" {
		result["state"] = state
		result["healthy"] = true
		return result
	}

	counts := c.GetCircuitBreakerCounts()
	result["state"] = state
	result["requests"] = counts.Requests
	result["total_successes"] = counts.TotalSuccesses
	result["total_failures"] = counts.TotalFailures
	result["consecutive_failures"] = counts.ConsecutiveFailures

	healthy := true
	switch state {
	case "open":
		healthy = false
	case "half-open":
		if counts.ConsecutiveFailures > 2 {
			healthy = false
		}
	}
	result["healthy"] = healthy

	return result
}
