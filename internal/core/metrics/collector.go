package metrics

import (
	"net"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-tunnel/internal/core/relay"
	"github.com/dep2p/go-tunnel/internal/core/upstream"
)

const namespace = "tunnel"

// 确保 Collector 实现观察者接口
var (
	_ relay.Observer           = (*Collector)(nil)
	_ upstream.AttemptObserver = (*Collector)(nil)
)

// Option Collector 选项
type Option func(*Collector)

// WithClock 注入速率计算用的时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Collector) {
		c.clock = clk
	}
}

// WithRuntimeCollectors 同时注册 Go 运行时和进程指标
func WithRuntimeCollectors() Option {
	return func(c *Collector) {
		c.runtime = true
	}
}

// Collector 隧道指标收集器
type Collector struct {
	clock   clock.Clock
	runtime bool

	registry *prometheus.Registry

	bytes                 *prometheus.CounterVec
	connectAttempts       *prometheus.CounterVec
	upstreamDisconnects   prometheus.Counter
	downstreamAccepts     prometheus.Counter
	downstreamDisconnects prometheus.Counter
	replays               prometheus.Counter
	replayBytes           prometheus.Counter
	upstreamConnected     prometheus.Gauge
	downstreamConnected   prometheus.Gauge

	rateToDown *RateMeter
	rateToUp   *RateMeter

	attemptsMu sync.Mutex
	attempts   int64
	failures   int64

	upMu   sync.Mutex
	upConn net.Conn
}

// NewCollector 创建指标收集器
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		clock:    clock.New(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rateToDown = NewRateMeter(DefaultRateWindow, c.clock)
	c.rateToUp = NewRateMeter(DefaultRateWindow, c.clock)

	c.bytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_forwarded_total",
		Help:      "Bytes forwarded by the relay, by direction.",
	}, []string{"direction"})
	c.connectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_connect_attempts_total",
		Help:      "Upstream connect attempts, by result.",
	}, []string{"result"})
	c.upstreamDisconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_disconnects_total",
		Help:      "Times the upstream connection was lost.",
	})
	c.downstreamAccepts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downstream_accepts_total",
		Help:      "Downstream peers accepted.",
	})
	c.downstreamDisconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downstream_disconnects_total",
		Help:      "Times the downstream peer was lost.",
	})
	c.replays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replays_total",
		Help:      "Replays of the retained chunk onto a fresh upstream connection.",
	})
	c.replayBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replay_bytes_total",
		Help:      "Bytes written by replays.",
	})
	c.upstreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_connected",
		Help:      "1 if an upstream connection is live.",
	})
	c.downstreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "downstream_connected",
		Help:      "1 if a downstream peer is attached.",
	})
	rtt := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_rtt_seconds",
		Help:      "Smoothed RTT of the upstream connection from TCP_INFO.",
	}, c.UpstreamRTT)

	c.registry.MustRegister(
		c.bytes,
		c.connectAttempts,
		c.upstreamDisconnects,
		c.downstreamAccepts,
		c.downstreamDisconnects,
		c.replays,
		c.replayBytes,
		c.upstreamConnected,
		c.downstreamConnected,
		rtt,
	)
	if c.runtime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// 预先创建标签，保证 /metrics 从一开始就输出完整序列
	c.bytes.WithLabelValues(relay.DirectionUpstreamToDownstream)
	c.bytes.WithLabelValues(relay.DirectionDownstreamToUpstream)
	c.connectAttempts.WithLabelValues("success")
	c.connectAttempts.WithLabelValues("failure")

	return c
}

// Registry 返回私有注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	})
}

// ============================================================================
//                              upstream.AttemptObserver
// ============================================================================

// ConnectAttempt 记录一次上游连接尝试
func (c *Collector) ConnectAttempt(err error) {
	c.attemptsMu.Lock()
	c.attempts++
	if err != nil {
		c.failures++
	}
	c.attemptsMu.Unlock()

	if err != nil {
		c.connectAttempts.WithLabelValues("failure").Inc()
		return
	}
	c.connectAttempts.WithLabelValues("success").Inc()
}

// ============================================================================
//                              relay.Observer
// ============================================================================

// BytesForwarded 记录转发字节
func (c *Collector) BytesForwarded(direction string, n int) {
	c.bytes.WithLabelValues(direction).Add(float64(n))

	switch direction {
	case relay.DirectionUpstreamToDownstream:
		c.rateToDown.Add(int64(n))
	case relay.DirectionDownstreamToUpstream:
		c.rateToUp.Add(int64(n))
	}
}

// UpstreamConnected 上游连接建立
func (c *Collector) UpstreamConnected(conn net.Conn) {
	c.upMu.Lock()
	c.upConn = conn
	c.upMu.Unlock()
	c.upstreamConnected.Set(1)
}

// UpstreamLost 上游连接丢失
func (c *Collector) UpstreamLost() {
	c.upMu.Lock()
	c.upConn = nil
	c.upMu.Unlock()
	c.upstreamConnected.Set(0)
	c.upstreamDisconnects.Inc()
}

// DownstreamAccepted 下游对端接入
func (c *Collector) DownstreamAccepted(net.Conn) {
	c.downstreamAccepts.Inc()
	c.downstreamConnected.Set(1)
}

// DownstreamLost 下游对端离开
func (c *Collector) DownstreamLost() {
	c.downstreamConnected.Set(0)
	c.downstreamDisconnects.Inc()
}

// Replayed 记录一次重放
func (c *Collector) Replayed(n int) {
	c.replays.Inc()
	c.replayBytes.Add(float64(n))
}

// ============================================================================
//                              查询
// ============================================================================

// UpstreamRTT 返回当前上游连接的 RTT（秒），不可用时为 0
func (c *Collector) UpstreamRTT() float64 {
	c.upMu.Lock()
	conn := c.upConn
	c.upMu.Unlock()

	if conn == nil {
		return 0
	}
	rtt, err := connRTT(conn)
	if err != nil {
		logger.Debug("读取上游 RTT 失败", "err", err)
		return 0
	}
	return rtt.Seconds()
}

// Snapshot 返回流量统计快照
func (c *Collector) Snapshot() Stats {
	c.attemptsMu.Lock()
	attempts, failures := c.attempts, c.failures
	c.attemptsMu.Unlock()

	return Stats{
		TotalUpstreamToDownstream: c.rateToDown.Total(),
		TotalDownstreamToUpstream: c.rateToUp.Total(),
		RateUpstreamToDownstream:  c.rateToDown.Rate(),
		RateDownstreamToUpstream:  c.rateToUp.Rate(),
		ConnectAttempts:           attempts,
		ConnectFailures:           failures,
		UpstreamRTT:               c.UpstreamRTT(),
	}
}
