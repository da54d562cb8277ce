package destiny

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSystem           ErrorCode = "DESTINY_1000"
	ErrCodeConfigInvalid    ErrorCode = "DESTINY_1001"
	ErrCodeCacheUnavailable ErrorCode = "DESTINY_1003"

	// 抽号错误 (2000-2999)
	ErrCodeInvalidParameters ErrorCode = "DESTINY_2000"
	ErrCodeInvalidRange      ErrorCode = "DESTINY_2001"
	ErrCodeInvalidRules      ErrorCode = "DESTINY_2002"
	ErrCodeTicketComplete    ErrorCode = "DESTINY_2003"
	ErrCodeDrawInProgress    ErrorCode = "DESTINY_2004"
	ErrCodeTicketCorrupted   ErrorCode = "DESTINY_2005"

	// 解读服务错误 (3000-3999)
	ErrCodeReadingUnavailable ErrorCode = "DESTINY_3000"
	ErrCodeReadingEmpty       ErrorCode = "DESTINY_3001"

	// 限流相关错误 (5000-5999)
	ErrCodeRateLimitExceeded  ErrorCode = "DESTINY_5000"
	ErrCodeCircuitBreakerOpen ErrorCode = "DESTINY_5001"

	// 序列化错误 (6000-6999)
	ErrCodeSerializationFailed   ErrorCode = "DESTINY_6000"
	ErrCodeDeserializationFailed ErrorCode = "DESTINY_6001"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// DestinyError 带错误码的错误类型
type DestinyError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id,omitempty"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *DestinyError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *DestinyError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *DestinyError) Is(target error) bool {
	if t, ok := target.(*DestinyError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone 返回浅拷贝, 预定义错误实例不会被 With* 方法修改
func (e *DestinyError) clone() *DestinyError {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Timestamp = time.Now()
	return &c
}

// WithCause 添加原因错误
func (e *DestinyError) WithCause(cause error) *DestinyError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetails 添加详细信息
func (e *DestinyError) WithDetails(details string) *DestinyError {
	c := e.clone()
	c.Details = details
	return c
}

// WithSessionID 添加会话ID
func (e *DestinyError) WithSessionID(sessionID string) *DestinyError {
	c := e.clone()
	c.SessionID = sessionID
	return c
}

// WithOperation 添加操作信息
func (e *DestinyError) WithOperation(operation string) *DestinyError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata 添加元数据
func (e *DestinyError) WithMetadata(key string, value any) *DestinyError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace 添加堆栈跟踪
func (e *DestinyError) WithStackTrace() *DestinyError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	e.StackTrace = string(buf[:n])
	return e
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *DestinyError {
	return &DestinyError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *DestinyError {
	err := NewError(code, message)
	err.Retryable = true
	return err
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *DestinyError {
	err := NewError(code, message)
	err.Severity = SeverityCritical
	return err.WithStackTrace()
}

// 预定义的错误实例
var (
	// 系统级错误
	ErrSystemError      = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrConfigInvalid    = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrCacheUnavailable = NewRetryableError(ErrCodeCacheUnavailable, "reading cache unavailable")

	// 抽号错误
	ErrInvalidParameters = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidRange      = NewError(ErrCodeInvalidRange, "invalid range: min must be less than or equal to max")
	ErrInvalidRules      = NewError(ErrCodeInvalidRules, "invalid draw rules")
	ErrTicketComplete    = NewError(ErrCodeTicketComplete, "ticket already complete")
	ErrDrawInProgress    = NewError(ErrCodeDrawInProgress, "draw already in progress")
	ErrTicketCorrupted   = NewError(ErrCodeTicketCorrupted, "ticket violates draw rules")

	// 解读服务错误
	ErrReadingUnavailable = NewRetryableError(ErrCodeReadingUnavailable, "reading service unavailable")
	ErrReadingEmpty       = NewError(ErrCodeReadingEmpty, "reading service returned no text")

	// 限流相关错误
	ErrRateLimitExceeded  = NewError(ErrCodeRateLimitExceeded, "reading rate limit exceeded")
	ErrCircuitBreakerOpen = NewError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")

	// 序列化错误
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")
)

// ErrorHandler 错误处理器接口
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(attempt int, err error) time.Duration
}

// DefaultErrorHandler 默认错误处理器
type DefaultErrorHandler struct {
	logger        Logger
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

// NewDefaultErrorHandler 创建默认错误处理器
func NewDefaultErrorHandler(logger Logger, baseDelay time.Duration) *DefaultErrorHandler {
	if baseDelay <= 0 {
		baseDelay = DefaultRetryInterval
	}
	return &DefaultErrorHandler{
		logger:        logger,
		baseDelay:     baseDelay,
		maxDelay:      MaxRetryDelay,
		backoffFactor: 2.0,
	}
}

// HandleError 把任意错误转换为 DestinyError 并记录日志
func (h *DefaultErrorHandler) HandleError(_ context.Context, err error) error {
	if err == nil {
		return nil
	}

	var destinyErr *DestinyError
	if !errors.As(err, &destinyErr) {
		destinyErr = NewError(ErrCodeSystem, err.Error()).WithCause(err)
		destinyErr.Retryable = IsRetryableError(err)
	}

	h.logError(destinyErr)
	return destinyErr
}

// ShouldRetry 判断是否应该重试
func (h *DefaultErrorHandler) ShouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var destinyErr *DestinyError
	if errors.As(err, &destinyErr) {
		return destinyErr.Retryable
	}

	return IsRetryableError(err)
}

// GetRetryDelay 获取重试延迟, 指数退避加 ±25% 抖动
func (h *DefaultErrorHandler) GetRetryDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return h.baseDelay
	}

	delay := time.Duration(float64(h.baseDelay) * math.Pow(h.backoffFactor, float64(attempt-1)))

	jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
	delay += jitter

	if delay > h.maxDelay {
		delay = h.maxDelay
	}

	return delay
}

func (h *DefaultErrorHandler) logError(err *DestinyError) {
	switch err.Severity {
	case SeverityCritical, SeverityHigh:
		h.logger.Error("severe error: %s (retryable=%t)", err.Error(), err.Retryable)
	case SeverityLow, SeverityInfo:
		h.logger.Info("minor error: %s", err.Error())
	default:
		h.logger.Debug("error: %s (retryable=%t)", err.Error(), err.Retryable)
	}
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var destinyErr *DestinyError
	if errors.As(err, &destinyErr) {
		return destinyErr.Retryable
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"overloaded",
		"rate limit",
		"too many requests",
		"500 internal server error",
		"502 bad gateway",
		"503 service unavailable",
		"redis: connection pool timeout",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// ErrorRecovery 错误恢复策略
type ErrorRecovery struct {
	handler    ErrorHandler
	maxRetries int
	logger     Logger
}

// NewErrorRecovery 创建错误恢复策略
func NewErrorRecovery(handler ErrorHandler, maxRetries int, logger Logger) *ErrorRecovery {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ErrorRecovery{
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExecuteWithRetry 执行带重试的操作
func (r *ErrorRecovery) ExecuteWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return NewError(ErrCodeSystem, "operation cancelled").WithCause(ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after %d retries", attempt)
			}
			return nil
		}

		lastErr = r.handler.HandleError(ctx, err)

		if !r.handler.ShouldRetry(lastErr) {
			r.logger.Debug("Error is not retryable: %v", lastErr)
			return lastErr
		}

		if attempt < r.maxRetries {
			delay := r.handler.GetRetryDelay(attempt+1, lastErr)
			r.logger.Debug("Retrying operation in %v (attempt %d/%d)", delay, attempt+1, r.maxRetries)

			select {
			case <-ctx.Done():
				return NewError(ErrCodeSystem, "operation cancelled during retry").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return NewError(ErrCodeSystem, fmt.Sprintf("operation failed after %d attempts", r.maxRetries+1)).WithCause(lastErr)
}
