package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"dashdash/protocol"
)

// SessionState 会话状态机：Connected → Handshaking → Active → Terminated
type SessionState int32

const (
	StateConnected SessionState = iota
	StateHandshaking
	StateActive
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session 一条连接与其玩家编号、（握手后）客户端身份的运行期绑定
type Session struct {
	id      PlayerID
	conn    Conn
	world   *World
	codec   protocol.Codec
	metrics *Metrics
	opts    sessionOptions

	state    atomic.Int32
	clientID string

	// outbox 只保留最新一份待发快照，由 writePump 独占写出
	outbox   chan []byte
	lastSent []byte // 仅 handshake 与 writePump 访问，二者不重叠

	closeOnce sync.Once
	done      chan struct{}
}

// sessionOptions 会话级参数
type sessionOptions struct {
	limiter          *rate.Limiter // 为空表示不限流
	readTimeout      time.Duration // Active 阶段每次读取的期限，0 表示无限等待
	handshakeTimeout time.Duration // 等待握手消息的期限，0 表示无限等待
}

func newSession(id PlayerID, conn Conn, world *World, codec protocol.Codec, metrics *Metrics, opts sessionOptions) *Session {
	return &Session{
		id:      id,
		conn:    conn,
		world:   world,
		codec:   codec,
		metrics: metrics,
		opts:    opts,
		outbox:  make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() PlayerID { return s.id }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Done 会话终止后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Run 会话主循环：握手后不断读取移动输入，直到连接关闭或出错
func (s *Session) Run() {
	var reason error
	defer func() { s.Close(reason) }()

	s.state.Store(int32(StateHandshaking))
	if reason = s.handshake(); reason != nil {
		return
	}
	s.state.Store(int32(StateActive))
	reason = s.loop()
}

func (s *Session) handshake() error {
	if s.opts.handshakeTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.handshakeTimeout))
	}
	payload, err := s.conn.ReadFrame()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			Log.Infof("player %d disconnected before sending client_id", s.id)
		case errors.Is(err, os.ErrDeadlineExceeded):
			Log.Infof("player %d sent no handshake within %s", s.id, s.opts.handshakeTimeout)
		}
		return s.classify(err)
	}
	_ = s.conn.SetReadDeadline(time.Time{})
	hs, err := protocol.DecodeHandshake(s.codec, payload)
	if err != nil {
		return s.classify(err)
	}

	snap, err := s.world.Join(s.id, hs.Name, hs.ClientID)
	if errors.Is(err, ErrIdentityInUse) {
		s.metrics.IncRejectedIdentity()
		Log.Infof("rejected player %d: client id already connected: %s", s.id, hs.ClientID)
		if b, mErr := s.codec.Marshal(protocol.Rejection{Error: protocol.ErrClientAlreadyConnected}); mErr == nil {
			_ = s.conn.WriteFrame(b)
		}
		return err
	}
	if err != nil {
		return err
	}
	s.clientID = hs.ClientID

	reply, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.conn.WriteFrame(reply); err != nil {
		return err
	}
	s.lastSent = reply
	go s.writePump()
	s.world.Attach(s.id, s)
	Log.Infof("registered player %d name=%q client_id=%q from %s",
		s.id, snap[s.id].Name, hs.ClientID, s.conn.RemoteAddr())
	return nil
}

func (s *Session) loop() error {
	for {
		if s.opts.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.readTimeout))
		}
		payload, err := s.conn.ReadFrame()
		if err != nil {
			return s.classify(err)
		}
		in, err := protocol.DecodeInput(s.codec, payload)
		if err != nil {
			return s.classify(err)
		}
		if s.opts.limiter != nil && !s.opts.limiter.Allow() {
			s.metrics.IncRateLimited()
			continue
		}
		if _, ok := s.world.Move(s.id, in.Movement, in.Name); !ok {
			// 写协程已因写失败移除了该玩家
			return ErrUnknownPlayer
		}
		s.metrics.IncInputsApplied()
	}
}

// classify 协议错误计数；干净关闭返回 nil
func (s *Session) classify(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrFrameTooLarge),
		errors.Is(err, io.ErrUnexpectedEOF):
		s.metrics.IncProtocolErrors()
	case errors.Is(err, net.ErrClosed):
		// 本端已关闭（通常是写协程先行终止了会话）
		return nil
	}
	return err
}

// Send 广播器投递快照：只替换待发槽位，从不阻塞；
// 对端读得慢时中间的快照被丢弃，写出的总是最新状态
func (s *Session) Send(payload []byte) error {
	select {
	case <-s.done:
		return net.ErrClosed
	default:
	}
	for {
		select {
		case s.outbox <- payload:
			return nil
		default:
		}
		// 槽位被旧快照占着，取出丢弃后重试
		select {
		case <-s.outbox:
		default:
		}
	}
}

// writePump 独立协程，负责把 outbox 中的快照写到连接；写失败即终止会话
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.outbox:
			if bytes.Equal(s.lastSent, payload) {
				continue
			}
			if err := s.conn.WriteFrame(payload); err != nil {
				select {
				case <-s.done:
					return
				default:
				}
				s.metrics.IncBroadcastFailure()
				Log.Warnf("failed to send update to player %d: %v", s.id, err)
				s.Close(err)
				return
			}
			s.lastSent = payload
		}
	}
}

// Close 终止会话：移除世界条目并释放身份，关闭连接。可重复调用。
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		prev := SessionState(s.state.Swap(int32(StateTerminated)))
		s.world.Remove(s.id)
		_ = s.conn.Close()
		close(s.done)
		if prev != StateActive {
			return
		}
		if reason != nil {
			Log.Infof("player %d disconnected: %v", s.id, reason)
		} else {
			Log.Infof("player %d disconnected", s.id)
		}
		Log.Infof("%d player(s) remaining", s.world.Len())
	})
}
