// dashbot 无界面客户端：连接服务端，按固定路线移动并打印收到的快照，用于联调与压测
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dashdash/client"
	"dashdash/protocol"
)

// route 顺时针绕圈，包含斜向
var route = []protocol.Movement{
	protocol.MoveRight,
	protocol.MoveDown | protocol.MoveRight,
	protocol.MoveDown,
	protocol.MoveDown | protocol.MoveLeft,
	protocol.MoveLeft,
	protocol.MoveUp | protocol.MoveLeft,
	protocol.MoveUp,
	protocol.MoveUp | protocol.MoveRight,
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:50000", "server address")
		name     = flag.String("name", "bot", "player name")
		id       = flag.String("id", "", "client identity (generated when empty)")
		codec    = flag.String("codec", protocol.CodecJSON, "wire codec: json or msgpack")
		interval = flag.Duration("interval", 50*time.Millisecond, "input interval")
		steps    = flag.Int("steps", 10, "inputs per route segment")
		duration = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if *id == "" {
		*id = client.NewIdentity()
	}
	if *steps < 1 {
		*steps = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, log, *addr, *name, *id, *codec, *interval, *steps); err != nil {
		log.Errorw("dashbot stopped", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zap.SugaredLogger, addr, name, id, codec string, interval time.Duration, steps int) error {
	c, err := client.Dial(ctx, addr, name, id, client.Options{Codec: codec})
	if err != nil {
		return err
	}
	defer c.Close()
	log.Infow("connected", "addr", addr, "name", name, "client_id", id, "players", len(c.Players()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return nil
		case <-c.Done():
			return c.Err()
		case <-report.C:
			logSnapshot(log, c.Players())
		case <-ticker.C:
			m := route[(sent/steps)%len(route)]
			if err := c.SendInput(m); err != nil {
				return err
			}
			sent++
		}
	}
}

func logSnapshot(log *zap.SugaredLogger, snap protocol.Snapshot) {
	ids := make([]protocol.PlayerID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := snap[id]
		log.Infow("player", "id", id, "name", p.Name, "x", p.X, "y", p.Y)
	}
}
