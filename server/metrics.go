package server

import (
	"sync/atomic"
)

// Metrics 记录服务运行期的关键指标（用于监控与调试）
type Metrics struct {
	ConnsAccepted     int64 // 通过准入的连接数
	RejectedFull      int64 // 因满员被静默关闭的连接数
	RejectedIdentity  int64 // 因身份冲突被拒绝的握手数
	ProtocolErrors    int64 // 畸形/截断/超长消息数
	InputsApplied     int64 // 已应用的移动输入数
	InputsRateLimited int64 // 因限流被丢弃的输入数
	BroadcastPasses   int64 // 广播轮次
	BroadcastFailures int64 // 广播写失败（会话被移除）次数
	TotalBroadcastNs  int64 // 广播累计耗时（纳秒）
}

func (m *Metrics) IncAccepted()         { atomic.AddInt64(&m.ConnsAccepted, 1) }
func (m *Metrics) IncRejectedFull()     { atomic.AddInt64(&m.RejectedFull, 1) }
func (m *Metrics) IncRejectedIdentity() { atomic.AddInt64(&m.RejectedIdentity, 1) }
func (m *Metrics) IncProtocolErrors()   { atomic.AddInt64(&m.ProtocolErrors, 1) }
func (m *Metrics) IncInputsApplied()    { atomic.AddInt64(&m.InputsApplied, 1) }
func (m *Metrics) IncRateLimited()      { atomic.AddInt64(&m.InputsRateLimited, 1) }
func (m *Metrics) IncBroadcastFailure() { atomic.AddInt64(&m.BroadcastFailures, 1) }
func (m *Metrics) AddBroadcast(ns int64) {
	atomic.AddInt64(&m.BroadcastPasses, 1)
	atomic.AddInt64(&m.TotalBroadcastNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	passes := atomic.LoadInt64(&m.BroadcastPasses)
	total := atomic.LoadInt64(&m.TotalBroadcastNs)
	var avgMs float64
	if passes > 0 {
		avgMs = float64(total) / float64(passes) / 1e6
	}
	return map[string]any{
		"conns_accepted":      atomic.LoadInt64(&m.ConnsAccepted),
		"rejected_full":       atomic.LoadInt64(&m.RejectedFull),
		"rejected_identity":   atomic.LoadInt64(&m.RejectedIdentity),
		"protocol_errors":     atomic.LoadInt64(&m.ProtocolErrors),
		"inputs_applied":      atomic.LoadInt64(&m.InputsApplied),
		"inputs_rate_limited": atomic.LoadInt64(&m.InputsRateLimited),
		"broadcast_passes":    passes,
		"broadcast_failures":  atomic.LoadInt64(&m.BroadcastFailures),
		"avg_broadcast_ms":    avgMs,
	}
}
