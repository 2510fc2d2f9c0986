package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"dashdash/protocol"
)

// acceptBackoff Accept 临时错误后的重试间隔
const acceptBackoff = 50 * time.Millisecond

// Server 权威服务端：准入控制、会话派生与广播
type Server struct {
	cfg         Config
	codec       protocol.Codec
	world       *World
	broadcaster *Broadcaster
	metrics     *Metrics
	upgrader    *websocket.Upgrader

	mu sync.Mutex
	ln net.Listener
}

// New 按配置创建服务端（不绑定端口）
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	metrics := &Metrics{}
	world := NewWorld(cfg.WorldConfig())
	return &Server{
		cfg:         cfg,
		codec:       codec,
		world:       world,
		broadcaster: NewBroadcaster(world, codec, metrics),
		metrics:     metrics,
		upgrader:    newUpgrader(cfg.AllowedOrigins),
	}, nil
}

func (s *Server) World() *World         { return s.world }
func (s *Server) Metrics() *Metrics     { return s.metrics }
func (s *Server) Config() Config        { return s.cfg }
func (s *Server) Codec() protocol.Codec { return s.codec }

// Broadcaster 返回广播器；Serve 会自动启动它，单独驱动 Admit 时需自行 Run
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Listen 绑定监听地址；失败即启动失败，由调用方上报并退出
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr 实际监听地址（端口为 0 时可取得系统分配的端口）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe 绑定并开始服务
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve 启动广播器并阻塞在 Accept 上，直到 ctx 取消或调用 Close。
// 停止时只关闭监听端口，已有会话继续运行直到各自的 I/O 结束。
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	go s.broadcaster.Run(ctx)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			Log.Warnf("accept: %v", err)
			time.Sleep(acceptBackoff)
			continue
		}
		s.Admit(NewTCPConn(c, s.cfg.MaxFrameSize, s.cfg.WriteTimeout))
	}
}

// Close 停止接受新连接并释放监听端口
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Admit 准入控制：满员时立即静默关闭，不消耗编号也不进行握手；
// 否则分配新编号并在独立协程中运行会话。TCP 与 WebSocket 共用此入口。
func (s *Server) Admit(conn Conn) (*Session, error) {
	id, err := s.world.Reserve()
	if err != nil {
		s.metrics.IncRejectedFull()
		Log.Infof("rejected connection from %s: server full (%d/%d)",
			conn.RemoteAddr(), s.world.Len()+s.world.Pending(), s.world.MaxPlayers())
		_ = conn.Close()
		return nil, err
	}
	s.metrics.IncAccepted()
	Log.Infof("new connection: player %d from %s", id, conn.RemoteAddr())

	opts := sessionOptions{
		readTimeout:      s.cfg.ReadTimeout,
		handshakeTimeout: s.cfg.HandshakeTimeout,
	}
	if s.cfg.InputRate > 0 {
		opts.limiter = rate.NewLimiter(rate.Limit(s.cfg.InputRate), s.cfg.InputBurst)
	}
	sess := newSession(id, conn, s.world, s.codec, s.metrics, opts)
	go sess.Run()
	return sess, nil
}
