package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// RateMeter - 速率计算器
// ============================================================================

// DefaultRateWindow 默认速率窗口
const DefaultRateWindow = 10 * time.Second

// RateMeter 速率计算器（按秒分桶的滑动窗口）
//
// 每个桶记录所属的 Unix 秒，过期桶在写入时被复用，
// 计算速率时只统计窗口内的桶。
type RateMeter struct {
	clock clock.Clock

	mu      sync.Mutex
	buckets []int64
	stamps  []int64
	total   int64
}

// NewRateMeter 创建速率计算器
func NewRateMeter(window time.Duration, clk clock.Clock) *RateMeter {
	n := int(window / time.Second)
	if n < 1 {
		n = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RateMeter{
		clock:   clk,
		buckets: make([]int64, n),
		stamps:  make([]int64, n),
	}
}

// Add 记录 n 字节
func (r *RateMeter) Add(n int64) {
	sec := r.clock.Now().Unix()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(sec)
	if r.stamps[i] != sec {
		r.stamps[i] = sec
		r.buckets[i] = 0
	}
	r.buckets[i] += n
	r.total += n
}

// Rate 返回窗口内的平均速率（字节/秒）
func (r *RateMeter) Rate() float64 {
	sec := r.clock.Now().Unix()

	r.mu.Lock()
	defer r.mu.Unlock()

	window := int64(len(r.buckets))
	var sum int64
	for i, v := range r.buckets {
		if sec-r.stamps[i] < window {
			sum += v
		}
	}
	return float64(sum) / float64(window)
}

// Total 返回累计总量
func (r *RateMeter) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Reset 重置速率计算器
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.buckets {
		r.buckets[i] = 0
		r.stamps[i] = 0
	}
	r.total = 0
}

func (r *RateMeter) index(sec int64) int {
	n := int64(len(r.buckets))
	return int(((sec % n) + n) % n)
}
