package destiny

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// stubGenerator 按顺序返回预设结果
type stubGenerator struct {
	calls   atomic.Int32
	results []stubResult
	prompt  atomic.Value
}

type stubResult struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt.Store(prompt)
	n := int(g.calls.Add(1)) - 1
	if n >= len(g.results) {
		n = len(g.results) - 1
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.results[n].text, g.results[n].err
}

func testReadingConfig() *ReadingConfig {
	config := DefaultReadingConfig()
	config.RatePerSecond = 0
	config.RetryAttempts = 2
	config.RetryInterval = time.Millisecond
	config.Timeout = time.Second
	return config
}

func sampleBalls() []Ball {
	return fullTicket(9, 3, 17, 26, 40, 61).Balls()
}

func TestBuildReadingPrompt(t *testing.T) {
	prompt := BuildReadingPrompt(sampleBalls())

	assert.Contains(t, prompt, "White balls [3, 17, 26, 40, 61] and Powerball [9]")
	assert.Contains(t, prompt, "millisecond timestamps")
	assert.Contains(t, prompt, "Destiny Reading")
}

func TestReadingService_EmptyReadingLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gen := &stubGenerator{results: []stubResult{{text: ""}}}
	svc := NewReadingService(gen, testReadingConfig(), WithReadingLogger(NewZapLogger(zap.New(core))))

	assert.Equal(t, FallbackSilent, svc.Analyze(context.Background(), sampleBalls()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, string(ErrCodeReadingEmpty))
}

func TestReadingService_Analyze(t *testing.T) {
	tests := []struct {
		name      string
		results   []stubResult
		want      string
		wantCalls int32
		fallback  bool
	}{
		{
			name:      "delivered",
			results:   []stubResult{{text: "  Seven winds favor you.  "}},
			want:      "Seven winds favor you.",
			wantCalls: 1,
		},
		{
			name:      "empty_text_is_silent",
			results:   []stubResult{{text: "   "}},
			want:      FallbackSilent,
			wantCalls: 1,
			fallback:  true,
		},
		{
			name:      "permanent_error_is_turbulent",
			results:   []stubResult{{err: errors.New("invalid x-api-key")}},
			want:      FallbackTurbulent,
			wantCalls: 1,
			fallback:  true,
		},
		{
			name: "transient_error_retried",
			results: []stubResult{
				{err: errors.New("503 Service Unavailable")},
				{text: "The tide turns."},
			},
			want:      "The tide turns.",
			wantCalls: 2,
		},
		{
			name:      "retries_exhausted",
			results:   []stubResult{{err: errors.New("connection reset by peer")}},
			want:      FallbackTurbulent,
			wantCalls: 3,
			fallback:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{results: tt.results}
			monitor := NewPerformanceMonitor()
			svc := NewReadingService(gen, testReadingConfig(), WithReadingMonitor(monitor))

			got := svc.Analyze(context.Background(), sampleBalls())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, gen.calls.Load())

			metrics := monitor.GetMetrics()
			if tt.fallback {
				assert.Equal(t, int64(1), metrics.ReadingsFallback)
			} else {
				assert.Equal(t, int64(1), metrics.ReadingsDelivered)
			}
		})
	}
}

func TestReadingService_CustomFallbacks(t *testing.T) {
	config := testReadingConfig()
	config.FallbackSilent = "quiet"
	config.FallbackTurbulent = "stormy"

	svc := NewReadingService(&stubGenerator{results: []stubResult{{text: ""}}}, config)
	assert.Equal(t, "quiet", svc.Analyze(context.Background(), sampleBalls()))

	svc = NewReadingService(&stubGenerator{results: []stubResult{{err: errors.New("bad request")}}}, config)
	assert.Equal(t, "stormy", svc.Analyze(context.Background(), sampleBalls()))
}

func TestReadingService_RateLimit(t *testing.T) {
	config := testReadingConfig()
	config.RatePerSecond = 0.001
	config.Burst = 1

	gen := &stubGenerator{results: []stubResult{{text: "once"}}}
	svc := NewReadingService(gen, config)

	assert.Equal(t, "once", svc.Analyze(context.Background(), sampleBalls()))
	assert.Equal(t, FallbackTurbulent, svc.Analyze(context.Background(), sampleBalls()))
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestReadingService_Timeout(t *testing.T) {
	config := testReadingConfig()
	config.Timeout = 10 * time.Millisecond

	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := NewReadingService(gen, config)

	start := time.Now()
	assert.Equal(t, FallbackTurbulent, svc.Analyze(context.Background(), sampleBalls()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadingService_Cache(t *testing.T) {
	balls := sampleBalls()

	t.Run("hit_skips_generator", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewReadingCache(db, &CacheConfig{MaxRetries: 0}, nil)
		key, err := cache.cacheKey(balls)
		require.NoError(t, err)

		payload, err := serializeReading("3, 17, 26, 40, 61 | 9", "cached destiny")
		require.NoError(t, err)
		mock.ExpectGet(key).SetVal(string(payload))

		gen := &stubGenerator{results: []stubResult{{text: "fresh"}}}
		monitor := NewPerformanceMonitor()
		svc := NewReadingService(gen, testReadingConfig(), WithReadingCache(cache), WithReadingMonitor(monitor))

		assert.Equal(t, "cached destiny", svc.Analyze(context.Background(), balls))
		assert.Equal(t, int32(0), gen.calls.Load())
		assert.Equal(t, int64(1), monitor.GetMetrics().CacheHits)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss_stores_reading", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.MatchExpectationsInOrder(true)
		cache := NewReadingCache(db, &CacheConfig{MaxRetries: 0, TTL: time.Hour}, nil)
		key, err := cache.cacheKey(balls)
		require.NoError(t, err)

		mock.ExpectGet(key).RedisNil()
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetVal("OK")

		gen := &stubGenerator{results: []stubResult{{text: "fresh"}}}
		svc := NewReadingService(gen, testReadingConfig(), WithReadingCache(cache))

		assert.Equal(t, "fresh", svc.Analyze(context.Background(), balls))
		assert.Equal(t, int32(1), gen.calls.Load())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache_down_still_reads", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewReadingCache(db, &CacheConfig{MaxRetries: 0, TTL: time.Hour}, nil)
		key, err := cache.cacheKey(balls)
		require.NoError(t, err)

		mock.ExpectGet(key).SetErr(errors.New("dial tcp: connection refused"))
		mock.Regexp().ExpectSet(key, `.*`, time.Hour).SetErr(errors.New("dial tcp: connection refused"))

		gen := &stubGenerator{results: []stubResult{{text: "uncached"}}}
		svc := NewReadingService(gen, testReadingConfig(), WithReadingCache(cache))

		assert.Equal(t, "uncached", svc.Analyze(context.Background(), balls))
	})
}

func TestNewReadingServiceFromConfig(t *testing.T) {
	config := DefaultConfig()
	config.Reading.APIKey = "test-key"

	svc := NewReadingServiceFromConfig(config, NewSilentLogger(), NewPerformanceMonitor())
	require.NotNil(t, svc)
	assert.Nil(t, svc.cache)
	assert.NotNil(t, svc.limiter)
	assert.IsType(t, &CircuitBreakerGenerator{}, svc.generator)

	config.Cache.Enabled = true
	svc = NewReadingServiceFromConfig(config, NewSilentLogger(), nil)
	assert.NotNil(t, svc.cache)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
