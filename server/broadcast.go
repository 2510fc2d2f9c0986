package server

import (
	"context"
	"time"

	"dashdash/protocol"
)

// Broadcaster 在世界变更时序列化一次快照并写给所有活跃会话
type Broadcaster struct {
	world   *World
	codec   protocol.Codec
	metrics *Metrics
}

func NewBroadcaster(world *World, codec protocol.Codec, metrics *Metrics) *Broadcaster {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Broadcaster{world: world, codec: codec, metrics: metrics}
}

// Run 等待变更信号；连续多次变更只触发一次广播，读取的总是最新状态
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.world.Changed():
			b.Pass()
		}
	}
}

// Pass 执行一轮广播，返回成功投递数。
// 投递只交给各会话的写协程，不在这里等待网络写；
// 投递失败（会话已关闭）只移除该会话，不影响本轮对其他会话的投递。
func (b *Broadcaster) Pass() int {
	start := time.Now()
	snap, sinks := b.world.broadcastSet()
	payload, err := b.codec.Marshal(snap)
	if err != nil {
		Log.Errorf("encode snapshot: %v", err)
		return 0
	}

	delivered := 0
	for id, sink := range sinks {
		if err := sink.Send(payload); err != nil {
			b.metrics.IncBroadcastFailure()
			Log.Warnf("failed to send update to player %d: %v", id, err)
			b.world.Remove(id)
			sink.Close(err)
			continue
		}
		delivered++
	}
	b.metrics.AddBroadcast(time.Since(start).Nanoseconds())
	return delivered
}
