package server

import (
	"bufio"
	"net"
	"sync"
	"time"

	"dashdash/protocol"
)

// Conn 一条已分帧的双向连接。读只由会话自己的协程调用，读期限由会话设置；
// 写来自握手与会话的写协程，实现必须串行化写操作。
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// tcpConn 在 TCP 字节流上使用长度前缀分帧
type tcpConn struct {
	c            net.Conn
	r            *bufio.Reader
	maxFrame     int
	writeTimeout time.Duration

	wmu sync.Mutex
}

// NewTCPConn 包装一条字节流连接（net.Pipe 同样适用）
func NewTCPConn(c net.Conn, maxFrame int, writeTimeout time.Duration) Conn {
	return &tcpConn{
		c:            c,
		r:            bufio.NewReader(c),
		maxFrame:     maxFrame,
		writeTimeout: writeTimeout,
	}
}

func (t *tcpConn) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(t.r, t.maxFrame)
}

func (t *tcpConn) WriteFrame(payload []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.writeTimeout > 0 {
		_ = t.c.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return protocol.WriteFrame(t.c, payload)
}

func (t *tcpConn) SetReadDeadline(d time.Time) error { return t.c.SetReadDeadline(d) }
func (t *tcpConn) Close() error                      { return t.c.Close() }
func (t *tcpConn) RemoteAddr() string                { return t.c.RemoteAddr().String() }
