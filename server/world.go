package server

import (
	"sync"

	"dashdash/protocol"
)

// Sink 广播的投递目标（每个活跃会话一个）
type Sink interface {
	Send(payload []byte) error
	Close(reason error)
}

// WorldConfig 世界的静态参数
type WorldConfig struct {
	MaxPlayers    int
	SpawnX        float64
	SpawnY        float64
	Speed         float64
	DiagonalSpeed float64
}

// World 权威世界状态：玩家表、身份登记表与编号计数器由同一把锁保护，
// 任何读写都必须经过 World 的方法，调用方拿不到内部的 map。
type World struct {
	mu sync.Mutex

	players    map[PlayerID]*Player
	pending    map[PlayerID]struct{} // 已准入但尚未完成握手的槽位
	sinks      map[PlayerID]Sink
	identities *IdentityRegistry
	nextID     PlayerID

	maxPlayers int
	spawnX     float64
	spawnY     float64
	speed      float64
	diagonal   float64

	// changed 电平触发的变更信号：容量为 1，多次变更合并为一次广播
	changed chan struct{}
}

// NewWorld 创建世界，玩家编号从 1 开始
func NewWorld(cfg WorldConfig) *World {
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.DiagonalSpeed <= 0 {
		cfg.DiagonalSpeed = DefaultDiagonalSpeed
	}
	return &World{
		players:    make(map[PlayerID]*Player),
		pending:    make(map[PlayerID]struct{}),
		sinks:      make(map[PlayerID]Sink),
		identities: NewIdentityRegistry(),
		nextID:     1,
		maxPlayers: cfg.MaxPlayers,
		spawnX:     cfg.SpawnX,
		spawnY:     cfg.SpawnY,
		speed:      cfg.Speed,
		diagonal:   cfg.DiagonalSpeed,
		changed:    make(chan struct{}, 1),
	}
}

// Changed 变更信号通道，仅供广播器消费
func (w *World) Changed() <-chan struct{} { return w.changed }

// notify 置位变更信号（非阻塞）
func (w *World) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Reserve 准入检查：玩家数加上握手中的槽位未满时分配新编号。
// 预留槽位计入人数，保证并发握手也不会让玩家数超过上限。
func (w *World) Reserve() (PlayerID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.maxPlayers > 0 && len(w.players)+len(w.pending) >= w.maxPlayers {
		return 0, ErrServerFull
	}
	id := w.nextID
	w.nextID++
	w.pending[id] = struct{}{}
	return id, nil
}

// Join 完成握手：登记身份并在出生点插入玩家，返回包含自身的完整快照。
// 身份冲突时返回 ErrIdentityInUse，预留槽位同样被回收，已有会话不受影响。
func (w *World) Join(id PlayerID, name, clientID string) (protocol.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[id]; !ok {
		return nil, ErrUnknownPlayer
	}
	delete(w.pending, id)
	if !w.identities.Register(clientID) {
		return nil, ErrIdentityInUse
	}
	if name == "" {
		name = DefaultName(id)
	}
	w.players[id] = &Player{ID: id, X: w.spawnX, Y: w.spawnY, Name: name, ClientID: clientID}
	return w.snapshotLocked(), nil
}

// Attach 将已握手的会话登记为广播目标并触发一次广播
func (w *World) Attach(id PlayerID, sink Sink) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.players[id]; !ok {
		return false
	}
	w.sinks[id] = sink
	w.notify()
	return true
}

// Move 解码移动掩码并累加到玩家坐标；name 非空时覆盖名字
func (w *World) Move(id PlayerID, m protocol.Movement, name string) (protocol.PlayerState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	if !ok {
		return protocol.PlayerState{}, false
	}
	p.X, p.Y = Integrate(p.X, p.Y, m, w.speed, w.diagonal)
	if name != "" {
		p.Name = name
	}
	w.notify()
	return p.State(), true
}

// Remove 移除玩家（或握手前的预留槽位）并释放其身份。幂等。
func (w *World) Remove(id PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[id]; ok {
		delete(w.pending, id)
		return true
	}
	p, ok := w.players[id]
	if !ok {
		return false
	}
	w.identities.Release(p.ClientID)
	delete(w.players, id)
	delete(w.sinks, id)
	w.notify()
	return true
}

// Snapshot 返回当前世界的一致副本
func (w *World) Snapshot() protocol.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// broadcastSet 在同一次加锁内取快照与投递目标
func (w *World) broadcastSet() (protocol.Snapshot, map[PlayerID]Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sinks := make(map[PlayerID]Sink, len(w.sinks))
	for id, s := range w.sinks {
		sinks[id] = s
	}
	return w.snapshotLocked(), sinks
}

func (w *World) snapshotLocked() protocol.Snapshot {
	snap := make(protocol.Snapshot, len(w.players))
	for id, p := range w.players {
		snap[id] = p.State()
	}
	return snap
}

// Player 查询单个玩家状态
func (w *World) Player(id PlayerID) (protocol.PlayerState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	if !ok {
		return protocol.PlayerState{}, false
	}
	return p.State(), true
}

// Len 已完成握手的玩家数
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.players)
}

// Pending 握手中的预留槽位数
func (w *World) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// IdentityInUse 身份是否被活跃会话占用
func (w *World) IdentityInUse(clientID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.identities.Contains(clientID)
}

func (w *World) MaxPlayers() int { return w.maxPlayers }

// Speeds 当前直线/斜向步长
func (w *World) Speeds() (speed, diagonal float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speed, w.diagonal
}

// SetSpeeds 热更新步长，非正值保持原值
func (w *World) SetSpeeds(speed, diagonal float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if speed > 0 {
		w.speed = speed
	}
	if diagonal > 0 {
		w.diagonal = diagonal
	}
}
