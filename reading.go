package destiny

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Analyzer produces the reading for a completed ticket.
//
// Analyze never fails: any problem is turned into a displayable fallback string.
type Analyzer interface {
	Analyze(ctx context.Context, balls []Ball) string
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, balls []Ball) string

// Analyze calls f
func (f AnalyzerFunc) Analyze(ctx context.Context, balls []Ball) string { return f(ctx, balls) }

// BuildReadingPrompt renders the fortune teller prompt for a ticket
func BuildReadingPrompt(balls []Ball) string {
	var primaries []string
	bonus := "?"
	for _, b := range balls {
		switch b.Category {
		case Primary:
			primaries = append(primaries, strconv.Itoa(b.Value))
		case Bonus:
			bonus = strconv.Itoa(b.Value)
		}
	}

	return fmt.Sprintf(`I just drew these Powerball numbers: White balls [%s] and Powerball [%s].
The numbers were generated using high-precision millisecond timestamps of my clicks.
Act as a mystical fortune teller and lottery expert. Give me a short (2-3 sentence) "Destiny Reading" for this specific set of numbers.
Tell me about the "vibe" of these numbers. Be encouraging and mysterious.`,
		strings.Join(primaries, ", "), bonus)
}

// ReadingService asks a TextGenerator for a reading and absorbs every failure.
//
// Order of operations: cache lookup, rate limit, generator call with retries
// (normally a CircuitBreakerGenerator), cache store.
type ReadingService struct {
	generator TextGenerator
	cache     *ReadingCache
	limiter   *rate.Limiter
	recovery  *ErrorRecovery
	logger    Logger
	monitor   *PerformanceMonitor

	timeout           time.Duration
	fallbackSilent    string
	fallbackTurbulent string
}

// ReadingOption customizes a ReadingService
type ReadingOption func(*ReadingService)

// WithReadingCache enables the Redis reading cache
func WithReadingCache(cache *ReadingCache) ReadingOption {
	return func(s *ReadingService) { s.cache = cache }
}

// WithReadingLogger sets the logger
func WithReadingLogger(logger Logger) ReadingOption {
	return func(s *ReadingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadingMonitor records reading outcomes in monitor
func WithReadingMonitor(monitor *PerformanceMonitor) ReadingOption {
	return func(s *ReadingService) { s.monitor = monitor }
}

// NewReadingService creates a reading service around generator
func NewReadingService(generator TextGenerator, config *ReadingConfig, opts ...ReadingOption) *ReadingService {
	if config == nil {
		config = DefaultReadingConfig()
	}

	s := &ReadingService{
		generator:         generator,
		logger:            NewSilentLogger(),
		timeout:           config.Timeout,
		fallbackSilent:    config.FallbackSilent,
		fallbackTurbulent: config.FallbackTurbulent,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fallbackSilent == "" {
		s.fallbackSilent = FallbackSilent
	}
	if s.fallbackTurbulent == "" {
		s.fallbackTurbulent = FallbackTurbulent
	}
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	s.recovery = NewErrorRecovery(NewDefaultErrorHandler(s.logger, config.RetryInterval), config.RetryAttempts, s.logger)

	if s.cache != nil && s.monitor != nil {
		s.cache.SetMonitor(s.monitor)
	}
	return s
}

// NewReadingServiceFromConfig wires the Anthropic generator, circuit breaker and,
// when enabled, the Redis cache from a full configuration
func NewReadingServiceFromConfig(config *Config, logger Logger, monitor *PerformanceMonitor) *ReadingService {
	if config == nil {
		config = DefaultConfig()
	}

	generator := NewCircuitBreakerGenerator(NewAnthropicGenerator(config.Reading), config.CircuitBreaker, logger)

	opts := []ReadingOption{WithReadingLogger(logger), WithReadingMonitor(monitor)}
	if config.Cache.Enabled {
		opts = append(opts, WithReadingCache(NewReadingCache(NewRedisClientFromConfig(config.Cache), config.Cache, logger)))
	}
	return NewReadingService(generator, config.Reading, opts...)
}

// Analyze implements Analyzer
func (s *ReadingService) Analyze(ctx context.Context, balls []Ball) string {
	reading, err := s.fetch(ctx, balls)
	if err != nil {
		s.logger.Error("Reading request failed, using fallback: %v", err)
		s.record(true)
		return s.fallbackTurbulent
	}
	if reading == "" {
		s.logger.Info("Using fallback: %v", ErrReadingEmpty)
		s.record(true)
		return s.fallbackSilent
	}
	s.record(false)
	return reading
}

func (s *ReadingService) fetch(ctx context.Context, balls []Ball) (string, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, balls)
		if err != nil {
			// the cache is an optimisation; carry on without it
			s.logger.Debug("Reading cache lookup failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return "", ErrRateLimitExceeded
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := BuildReadingPrompt(balls)
	var reading string
	err := s.recovery.ExecuteWithRetry(ctx, func() error {
		text, genErr := s.generator.Generate(ctx, prompt)
		if genErr != nil {
			return genErr
		}
		reading = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		return "", err
	}

	if reading != "" && s.cache != nil {
		if err := s.cache.Set(ctx, balls, reading); err != nil {
			s.logger.Debug("Reading cache store failed: %v", err)
		}
	}
	return reading, nil
}

func (s *ReadingService) record(fallback bool) {
	if s.monitor != nil {
		s.monitor.RecordReading(fallback)
	}
}
