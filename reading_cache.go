package destiny

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ReadingCache stores readings in Redis keyed by the ticket's numbers, so the same
// set of numbers is answered without another call to the text generation service.
type ReadingCache struct {
	redisClient *redis.Client
	logger      Logger
	monitor     *PerformanceMonitor
	keyPrefix   string
	ttl         time.Duration
	recovery    *ErrorRecovery
}

// cachedReading is the stored payload
type cachedReading struct {
	Numbers  string `json:"numbers"`
	Reading  string `json:"reading"`
	StoredAt int64  `json:"stored_at"`
}

// NewReadingCache creates a cache on top of an existing Redis client
func NewReadingCache(redisClient *redis.Client, config *CacheConfig, logger Logger) *ReadingCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = ReadingKeyPrefix
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultReadingCacheTTL
	}

	return &ReadingCache{
		redisClient: redisClient,
		logger:      logger,
		keyPrefix:   prefix,
		ttl:         ttl,
		recovery: NewErrorRecovery(
			NewDefaultErrorHandler(logger, DefaultRetryInterval), config.MaxRetries, logger,
		),
	}
}

// SetMonitor attaches a monitor that records hits and misses
func (rc *ReadingCache) SetMonitor(monitor *PerformanceMonitor) { rc.monitor = monitor }

// cacheKey builds a key from the sorted primary values and the bonus value.
//
// Draw order and timestamps do not matter: a reading depends on the numbers only.
func (rc *ReadingCache) cacheKey(balls []Ball) (string, error) {
	if len(balls) == 0 {
		return "", ErrInvalidParameters.WithDetails("empty ticket")
	}

	var primaries []int
	bonus := -1
	for _, b := range balls {
		switch b.Category {
		case Primary:
			primaries = append(primaries, b.Value)
		case Bonus:
			bonus = b.Value
		default:
			return "", ErrInvalidParameters.WithDetails(fmt.Sprintf("unknown ball category %q", b.Category))
		}
	}
	if bonus < 0 {
		return "", ErrInvalidParameters.WithDetails("ticket has no bonus ball")
	}
	slices.Sort(primaries)

	parts := make([]string, len(primaries))
	for i, v := range primaries {
		parts[i] = strconv.Itoa(v)
	}
	canonical := strings.Join(parts, ",") + "|" + strconv.Itoa(bonus)

	sum := sha256.Sum256([]byte(canonical))
	return rc.keyPrefix + hex.EncodeToString(sum[:8]), nil
}

func serializeReading(numbers, reading string) ([]byte, error) {
	data, err := json.Marshal(cachedReading{Numbers: numbers, Reading: reading, StoredAt: time.Now().Unix()})
	if err != nil {
		return nil, ErrSerializationFailed.WithCause(err)
	}
	if len(data) > MaxReadingSize {
		return nil, ErrSerializationFailed.WithDetails(fmt.Sprintf("reading size (%d bytes) exceeds maximum allowed size (%d bytes)", len(data), MaxReadingSize))
	}
	return data, nil
}

func deserializeReading(data []byte) (*cachedReading, error) {
	if len(data) == 0 {
		return nil, ErrDeserializationFailed.WithDetails("empty payload")
	}
	if len(data) > MaxReadingSize {
		return nil, ErrDeserializationFailed.WithDetails(fmt.Sprintf("payload size (%d bytes) exceeds maximum allowed size (%d bytes)", len(data), MaxReadingSize))
	}

	var cr cachedReading
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, ErrDeserializationFailed.WithCause(err)
	}
	if cr.Reading == "" {
		return nil, ErrDeserializationFailed.WithDetails("empty reading")
	}
	return &cr, nil
}

// Get returns the cached reading for balls; ok is false on a miss
func (rc *ReadingCache) Get(ctx context.Context, balls []Ball) (reading string, ok bool, err error) {
	key, err := rc.cacheKey(balls)
	if err != nil {
		return "", false, err
	}

	var data []byte
	loadStart := time.Now()
	err = rc.recovery.ExecuteWithRetry(ctx, func() error {
		var getErr error
		data, getErr = rc.redisClient.Get(ctx, key).Bytes()
		if errors.Is(getErr, redis.Nil) {
			// 键不存在不是错误, 不重试
			data = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		rc.logger.Error("Failed to load reading from Redis: key=%s, load_time=%v, error=%v", key, time.Since(loadStart), err)
		return "", false, ErrCacheUnavailable.WithCause(err)
	}

	if len(data) == 0 {
		rc.recordLookup(false)
		rc.logger.Debug("Reading cache miss: key=%s", key)
		return "", false, nil
	}

	cr, err := deserializeReading(data)
	if err != nil {
		rc.logger.Error("Dropping corrupted cached reading: key=%s, size=%d bytes, error=%v", key, len(data), err)
		rc.recordLookup(false)
		if delErr := rc.redisClient.Del(ctx, key).Err(); delErr != nil {
			rc.logger.Debug("Failed to delete corrupted reading: key=%s, error=%v", key, delErr)
		}
		return "", false, nil
	}

	rc.recordLookup(true)
	rc.logger.Debug("Reading cache hit: key=%s, numbers=%s", key, cr.Numbers)
	return cr.Reading, true, nil
}

// Set stores reading for balls with the configured TTL
func (rc *ReadingCache) Set(ctx context.Context, balls []Ball, reading string) error {
	if reading == "" {
		return ErrInvalidParameters.WithDetails("empty reading")
	}
	key, err := rc.cacheKey(balls)
	if err != nil {
		return err
	}

	data, err := serializeReading(NewTicket(balls...).Numbers(), reading)
	if err != nil {
		return err
	}

	err = rc.recovery.ExecuteWithRetry(ctx, func() error {
		return rc.redisClient.Set(ctx, key, data, rc.ttl).Err()
	})
	if err != nil {
		rc.logger.Error("Failed to save reading to Redis: key=%s, size=%d bytes, ttl=%v, error=%v", key, len(data), rc.ttl, err)
		return ErrCacheUnavailable.WithCause(err)
	}

	rc.logger.Debug("Saved reading: key=%s, size=%d bytes, ttl=%v", key, len(data), rc.ttl)
	return nil
}

// Delete removes the cached reading for balls
func (rc *ReadingCache) Delete(ctx context.Context, balls []Ball) error {
	key, err := rc.cacheKey(balls)
	if err != nil {
		return err
	}
	if err := rc.redisClient.Del(ctx, key).Err(); err != nil {
		return ErrCacheUnavailable.WithCause(err)
	}
	return nil
}

func (rc *ReadingCache) recordLookup(hit bool) {
	if rc.monitor != nil {
		rc.monitor.RecordCacheLookup(hit)
	}
}
