package upstream

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/dep2p/go-tunnel/config"
)

const maxDuration = float64(math.MaxInt64)

// Backoff 重连退避计算器
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	// rand 返回 [0, 1) 随机数，用于抖动
	rand func() float64
}

// NewBackoff 从重连策略创建退避计算器
func NewBackoff(cfg config.RetryConfig) *Backoff {
	return &Backoff{
		initial:    cfg.InitialDelay,
		max:        cfg.MaxDelay,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rand:       rand.Float64,
	}
}

// Delay 返回第 attempt 次失败后的等待时间
//
// attempt 从 1 开始。InitialDelay 为 0 时总是返回 0。
func (b *Backoff) Delay(attempt int) time.Duration {
	if b.initial <= 0 || attempt <= 0 {
		return 0
	}

	mult := b.multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.initial) * math.Pow(mult, float64(attempt-1))
	if b.max > 0 && d > float64(b.max) {
		d = float64(b.max)
	}
	// 不设上限时指数增长会超出 int64，也可能变成 +Inf
	if d > maxDuration {
		d = maxDuration
	}

	// ±jitter
	if b.jitter > 0 && b.rand != nil {
		d += d * b.jitter * (2*b.rand() - 1)
	}
	if d < 0 {
		return 0
	}
	if d >= maxDuration {
		return math.MaxInt64
	}
	return time.Duration(d)
}
