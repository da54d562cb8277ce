package destiny

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMetrics 抽号与解读统计快照
type PerformanceMetrics struct {
	// 抽号统计
	TotalDraws    int64 `json:"total_draws"`    // 成功抽出的球数
	RejectedDraws int64 `json:"rejected_draws"` // 被拒绝的抽号 (已满/冷却中)
	Completions   int64 `json:"completions"`    // 完成的彩票数
	Resets        int64 `json:"resets"`         // 重置次数
	TotalDrawTime int64 `json:"total_draw_time"`

	// 解读统计
	ReadingsDelivered int64 `json:"readings_delivered"` // 服务返回的解读
	ReadingsFallback  int64 `json:"readings_fallback"`  // 使用兜底文案的解读
	ReadingsStale     int64 `json:"readings_stale"`     // 重置后才到达而被丢弃的解读
	CacheHits         int64 `json:"cache_hits"`
	CacheMisses       int64 `json:"cache_misses"`

	StartTime      int64 `json:"start_time"`
	LastUpdateTime int64 `json:"last_update_time"`
}

// AverageDrawTime 平均抽号耗时
func (pm *PerformanceMetrics) AverageDrawTime() time.Duration {
	if pm.TotalDraws == 0 {
		return 0
	}
	return time.Duration(pm.TotalDrawTime / pm.TotalDraws)
}

// FallbackRate 兜底文案占比 (百分比)
func (pm *PerformanceMetrics) FallbackRate() float64 {
	total := pm.ReadingsDelivered + pm.ReadingsFallback
	if total == 0 {
		return 0.0
	}
	return float64(pm.ReadingsFallback) / float64(total) * 100.0
}

// PerformanceMonitor 性能监控器, 计数器同时导出到 Prometheus
type PerformanceMonitor struct {
	metrics PerformanceMetrics
	mu      sync.RWMutex
	enabled bool

	registry     *prometheus.Registry
	drawsTotal   *prometheus.CounterVec
	drawDuration prometheus.Histogram
	completions  prometheus.Counter
	resets       prometheus.Counter
	readings     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// NewPerformanceMonitor 创建新的性能监控器
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		enabled:  true,
		registry: prometheus.NewRegistry(),
		drawsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "destiny",
			Subsystem: "draw",
			Name:      "attempts_total",
			Help:      "Draw attempts by outcome (ok, complete, in_progress)",
		}, []string{"outcome"}),
		drawDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "destiny",
			Subsystem: "draw",
			Name:      "duration_seconds",
			Help:      "Time spent sampling one ball",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "destiny",
			Subsystem: "ticket",
			Name:      "completions_total",
			Help:      "Tickets that reached the complete state",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "destiny",
			Subsystem: "ticket",
			Name:      "resets_total",
			Help:      "Session resets",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "destiny",
			Subsystem: "reading",
			Name:      "results_total",
			Help:      "Reading results by kind (delivered, fallback, stale)",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "destiny",
			Subsystem: "reading_cache",
			Name:      "lookups_total",
			Help:      "Reading cache lookups by result (hit, miss)",
		}, []string{"result"}),
	}
	pm.registry.MustRegister(pm.drawsTotal, pm.drawDuration, pm.completions, pm.resets, pm.readings, pm.cacheLookups)
	pm.ResetMetrics()
	return pm
}

// Registry 返回 Prometheus 注册表
func (pm *PerformanceMonitor) Registry() *prometheus.Registry { return pm.registry }

// Enable 启用性能监控
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Disable 禁用性能监控
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// IsEnabled 检查是否启用了性能监控
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

func (pm *PerformanceMonitor) touch() {
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordDraw 记录一次成功抽号
func (pm *PerformanceMonitor) RecordDraw(duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}
	atomic.AddInt64(&pm.metrics.TotalDraws, 1)
	atomic.AddInt64(&pm.metrics.TotalDrawTime, int64(duration))
	pm.drawsTotal.WithLabelValues("ok").Inc()
	pm.drawDuration.Observe(duration.Seconds())
	pm.touch()
}

// RecordRejectedDraw 记录被拒绝的抽号, reason 为 "complete" 或 "in_progress"
func (pm *PerformanceMonitor) RecordRejectedDraw(reason string) {
	if !pm.IsEnabled() {
		return
	}
	atomic.AddInt64(&pm.metrics.RejectedDraws, 1)
	pm.drawsTotal.WithLabelValues(reason).Inc()
	pm.touch()
}

// RecordCompletion 记录彩票完成
func (pm *PerformanceMonitor) RecordCompletion() {
	if !pm.IsEnabled() {
		return
	}
	atomic.AddInt64(&pm.metrics.Completions, 1)
	pm.completions.Inc()
	pm.touch()
}

// RecordReset 记录重置
func (pm *PerformanceMonitor) RecordReset() {
	if !pm.IsEnabled() {
		return
	}
	atomic.AddInt64(&pm.metrics.Resets, 1)
	pm.resets.Inc()
	pm.touch()
}

// RecordReading 记录解读结果; fallback 表示使用了兜底文案
func (pm *PerformanceMonitor) RecordReading(fallback bool) {
	if !pm.IsEnabled() {
		return
	}
	if fallback {
		atomic.AddInt64(&pm.metrics.ReadingsFallback, 1)
		pm.readings.WithLabelValues("fallback").Inc()
	} else {
		atomic.AddInt64(&pm.metrics.ReadingsDelivered, 1)
		pm.readings.WithLabelValues("delivered").Inc()
	}
	pm.touch()
}

// RecordStaleReading 记录被丢弃的过期解读
func (pm *PerformanceMonitor) RecordStaleReading() {
	if !pm.IsEnabled() {
		return
	}
	atomic.AddInt64(&pm.metrics.ReadingsStale, 1)
	pm.readings.WithLabelValues("stale").Inc()
	pm.touch()
}

// RecordCacheLookup 记录缓存查询
func (pm *PerformanceMonitor) RecordCacheLookup(hit bool) {
	if !pm.IsEnabled() {
		return
	}
	if hit {
		atomic.AddInt64(&pm.metrics.CacheHits, 1)
		pm.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		atomic.AddInt64(&pm.metrics.CacheMisses, 1)
		pm.cacheLookups.WithLabelValues("miss").Inc()
	}
	pm.touch()
}

// GetMetrics 获取性能指标的副本
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalDraws:        atomic.LoadInt64(&pm.metrics.TotalDraws),
		RejectedDraws:     atomic.LoadInt64(&pm.metrics.RejectedDraws),
		Completions:       atomic.LoadInt64(&pm.metrics.Completions),
		Resets:            atomic.LoadInt64(&pm.metrics.Resets),
		TotalDrawTime:     atomic.LoadInt64(&pm.metrics.TotalDrawTime),
		ReadingsDelivered: atomic.LoadInt64(&pm.metrics.ReadingsDelivered),
		ReadingsFallback:  atomic.LoadInt64(&pm.metrics.ReadingsFallback),
		ReadingsStale:     atomic.LoadInt64(&pm.metrics.ReadingsStale),
		CacheHits:         atomic.LoadInt64(&pm.metrics.CacheHits),
		CacheMisses:       atomic.LoadInt64(&pm.metrics.CacheMisses),
		StartTime:         atomic.LoadInt64(&pm.metrics.StartTime),
		LastUpdateTime:    atomic.LoadInt64(&pm.metrics.LastUpdateTime),
	}
}

// ResetMetrics 重置快照计数 (Prometheus 计数器单调递增, 不受影响)
func (pm *PerformanceMonitor) ResetMetrics() {
	atomic.StoreInt64(&pm.metrics.TotalDraws, 0)
	atomic.StoreInt64(&pm.metrics.RejectedDraws, 0)
	atomic.StoreInt64(&pm.metrics.Completions, 0)
	atomic.StoreInt64(&pm.metrics.Resets, 0)
	atomic.StoreInt64(&pm.metrics.TotalDrawTime, 0)
	atomic.StoreInt64(&pm.metrics.ReadingsDelivered, 0)
	atomic.StoreInt64(&pm.metrics.ReadingsFallback, 0)
	atomic.StoreInt64(&pm.metrics.ReadingsStale, 0)
	atomic.StoreInt64(&pm.metrics.CacheHits, 0)
	atomic.StoreInt64(&pm.metrics.CacheMisses, 0)
	now := time.Now().UnixNano()
	atomic.StoreInt64(&pm.metrics.StartTime, now)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, now)
}
