package destiny

import "time"

const (
	// DefaultPrimaryCount is the number of primary (white) balls on a ticket
	DefaultPrimaryCount = 5

	// DefaultPrimaryMax is the upper bound of the primary pool (1..69)
	DefaultPrimaryMax = 69

	// DefaultBonusMax is the upper bound of the bonus pool (1..26)
	DefaultBonusMax = 26

	// DefaultHistorySize is the number of completed tickets kept in history
	DefaultHistorySize = 5

	// DefaultSettleDuration is the cooldown after each draw during which new draws are rejected
	DefaultSettleDuration = 200 * time.Millisecond

	// MaxSettleDuration caps the configurable cooldown
	MaxSettleDuration = 10 * time.Second

	// MaxHistorySize caps the configurable history length
	MaxHistorySize = 100
)

const (
	// lcgMultiplier is the Park-Miller minimal standard multiplier (7^5)
	lcgMultiplier int64 = 16807

	// lcgModulus is the Mersenne prime 2^31 - 1
	lcgModulus int64 = 2147483647
)

const (
	// DefaultReadingModel is the text generation model used for readings
	DefaultReadingModel = "claude-3-5-haiku-latest"

	// DefaultReadingMaxTokens bounds the length of a reading
	DefaultReadingMaxTokens = 256

	// DefaultReadingTimeout is the per-request timeout for the text generation service
	DefaultReadingTimeout = 15 * time.Second

	// DefaultReadingRatePerSecond is the sustained rate of reading requests
	DefaultReadingRatePerSecond = 1.0

	// DefaultReadingBurst is the burst size for reading requests
	DefaultReadingBurst = 3

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 2

	// DefaultRetryInterval is the default base interval between retry attempts
	DefaultRetryInterval = 200 * time.Millisecond

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MaxRetryDelay caps the exponential backoff delay
	MaxRetryDelay = 5 * time.Second

	// FallbackSilent is shown when the service answers with no text
	FallbackSilent = "The stars are silent on these numbers, but your journey is just beginning."

	// FallbackTurbulent is shown when the reading request fails for any reason
	FallbackTurbulent = "The cosmic energies are turbulent right now. Your luck remains your own to command."
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "destiny-reading"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	// ReadingKeyPrefix is the prefix for cached reading keys
	ReadingKeyPrefix = "destiny:reading:"

	// DefaultReadingCacheTTL is how long a cached reading lives
	DefaultReadingCacheTTL = 24 * time.Hour

	// MaxReadingSize bounds a cached reading payload
	MaxReadingSize = 64 * 1024

	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 10
	DefaultRedisMinIdleConns = 2
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
)
