// Package client 连接 Dash Dash 服务端：握手、后台接收快照、发送移动输入
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"dashdash/protocol"
)

// ErrAlreadyConnected 同一客户端身份已有活跃会话
var ErrAlreadyConnected = errors.New("client: this client is already connected to the server")

// ErrNotConnected 连接已断开
var ErrNotConnected = errors.New("client: not connected")

// NewIdentity 生成安装级别的客户端身份
func NewIdentity() string { return uuid.NewString() }

// Options 连接参数
type Options struct {
	Codec        string        // 需与服务端一致
	MaxFrameSize int           // 单帧上限
	DialTimeout  time.Duration // 连接与握手超时
}

func (o *Options) withDefaults() {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
}

// Client 一个已完成握手的网络会话
type Client struct {
	conn     net.Conn
	r        *bufio.Reader
	codec    protocol.Codec
	maxFrame int
	name     string
	clientID string

	wmu sync.Mutex

	mu      sync.Mutex
	players protocol.Snapshot
	err     error

	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Dial 连接并握手。服务端以 Rejection 应答时返回 ErrAlreadyConnected；
// 服务端满员时连接会被直接关闭，表现为握手读取失败。
func Dial(ctx context.Context, addr, name, clientID string, opts Options) (*Client, error) {
	opts.withDefaults()
	codec, err := protocol.NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := &Client{
		conn:     conn,
		r:        bufio.NewReader(conn),
		codec:    codec,
		maxFrame: opts.MaxFrameSize,
		name:     name,
		clientID: clientID,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	snap, err := c.handshake()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	c.players = snap

	go c.receive()
	return c, nil
}

func (c *Client) handshake() (protocol.Snapshot, error) {
	b, err := c.codec.Marshal(protocol.Handshake{Movement: protocol.MoveNone, Name: c.name, ClientID: c.clientID})
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteFrame(c.conn, b); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}
	payload, err := protocol.ReadFrame(c.r, c.maxFrame)
	if err != nil {
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	snap, err := protocol.DecodeReply(c.codec, payload)
	var rej *protocol.RejectedError
	if errors.As(err, &rej) {
		if rej.Code == protocol.ErrClientAlreadyConnected {
			return nil, ErrAlreadyConnected
		}
		return nil, err
	}
	return snap, err
}

// receive 后台接收快照，直到连接断开
func (c *Client) receive() {
	for {
		payload, err := protocol.ReadFrame(c.r, c.maxFrame)
		if err != nil {
			c.fail(err)
			return
		}
		snap, err := protocol.DecodeSnapshot(c.codec, payload)
		if err != nil {
			c.fail(err)
			return
		}
		c.mu.Lock()
		c.players = snap
		c.mu.Unlock()
		select {
		case c.changed <- struct{}{}:
		default:
		}
	}
}

func (c *Client) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		_ = c.conn.Close()
		close(c.done)
	})
}

// SendInput 发送一次移动输入
func (c *Client) SendInput(m protocol.Movement) error {
	return c.send(protocol.Input{Movement: m})
}

// Rename 修改显示名，随下一条输入生效
func (c *Client) Rename(name string) error {
	c.wmu.Lock()
	c.name = name
	c.wmu.Unlock()
	return c.SendInput(protocol.MoveNone)
}

func (c *Client) send(in protocol.Input) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	in.Name = c.name
	b, err := c.codec.Marshal(in)
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(c.conn, b); err != nil {
		c.fail(err)
		return fmt.Errorf("send input: %w", err)
	}
	return nil
}

// Players 返回最近一次快照的副本
func (c *Client) Players() protocol.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.players.Clone()
}

// WaitFor 阻塞直到快照满足条件、连接断开或 ctx 结束
func (c *Client) WaitFor(ctx context.Context, cond func(protocol.Snapshot) bool) (protocol.Snapshot, error) {
	for {
		snap := c.Players()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-c.changed:
		case <-c.done:
			snap := c.Players()
			if cond(snap) {
				return snap, nil
			}
			return snap, c.Err()
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Err 连接断开的原因
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done 连接断开后关闭
func (c *Client) Done() <-chan struct{} { return c.done }

// Connected 连接是否仍然可用
func (c *Client) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close 主动断开
func (c *Client) Close() error {
	c.fail(ErrNotConnected)
	return nil
}
