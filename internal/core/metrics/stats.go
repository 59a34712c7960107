package metrics

// Stats 流量统计快照
//
// Total 为累计字节数，Rate 为最近窗口内的平均字节/秒。
type Stats struct {
	TotalUpstreamToDownstream int64   `json:"total_upstream_to_downstream"`
	TotalDownstreamToUpstream int64   `json:"total_downstream_to_upstream"`
	RateUpstreamToDownstream  float64 `json:"rate_upstream_to_downstream"`
	RateDownstreamToUpstream  float64 `json:"rate_downstream_to_upstream"`

	ConnectAttempts int64   `json:"connect_attempts"`
	ConnectFailures int64   `json:"connect_failures"`
	UpstreamRTT     float64 `json:"upstream_rtt_seconds"`
}
