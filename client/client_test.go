package client_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashdash/client"
	"dashdash/protocol"
)

// fakeServer 接受单个连接并按脚本应答
type fakeServer struct {
	ln    net.Listener
	codec protocol.Codec
	conns chan net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	codec, err := protocol.NewCodec(protocol.CodecJSON)
	require.NoError(t, err)
	fs := &fakeServer{ln: ln, codec: codec, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			fs.conns <- c
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return fs
}

func (fs *fakeServer) addr() string { return fs.ln.Addr().String() }

func (fs *fakeServer) accept(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	select {
	case c := <-fs.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c, bufio.NewReader(c)
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil, nil
	}
}

func (fs *fakeServer) write(t *testing.T, c net.Conn, v any) {
	t.Helper()
	b, err := fs.codec.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(c, b))
}

func (fs *fakeServer) readInput(t *testing.T, c net.Conn, r *bufio.Reader) protocol.Input {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := protocol.ReadFrame(r, 0)
	require.NoError(t, err)
	in, err := protocol.DecodeInput(fs.codec, b)
	require.NoError(t, err)
	return in
}

type dialResult struct {
	c   *client.Client
	err error
}

func dialAsync(addr, name, id string) <-chan dialResult {
	ch := make(chan dialResult, 1)
	go func() {
		c, err := client.Dial(context.Background(), addr, name, id, client.Options{DialTimeout: 2 * time.Second})
		ch <- dialResult{c: c, err: err}
	}()
	return ch
}

func TestDial_HandshakeAndInputs(t *testing.T) {
	fs := newFakeServer(t)
	res := dialAsync(fs.addr(), "alice", "id-1")
	conn, r := fs.accept(t)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := protocol.ReadFrame(r, 0)
	require.NoError(t, err)
	hs, err := protocol.DecodeHandshake(fs.codec, b)
	require.NoError(t, err)
	assert.Equal(t, protocol.Handshake{Movement: protocol.MoveNone, Name: "alice", ClientID: "id-1"}, hs)

	fs.write(t, conn, protocol.Snapshot{1: {X: 400, Y: 300, Name: "alice", ClientID: "id-1"}})
	dr := <-res
	require.NoError(t, dr.err)
	c := dr.c
	defer c.Close()
	assert.True(t, c.Connected())
	assert.Equal(t, 400.0, c.Players()[1].X)

	require.NoError(t, c.SendInput(protocol.MoveUp|protocol.MoveRight))
	in := fs.readInput(t, conn, r)
	assert.Equal(t, protocol.MoveUp|protocol.MoveRight, in.Movement)
	assert.Equal(t, "alice", in.Name)

	require.NoError(t, c.Rename("robert"))
	in = fs.readInput(t, conn, r)
	assert.Equal(t, protocol.MoveNone, in.Movement)
	assert.Equal(t, "robert", in.Name)

	fs.write(t, conn, protocol.Snapshot{
		1: {X: 403.5, Y: 296.5, Name: "robert", ClientID: "id-1"},
		2: {X: 400, Y: 300, Name: "Player2"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := c.WaitFor(ctx, func(s protocol.Snapshot) bool { return len(s) == 2 })
	require.NoError(t, err)
	assert.Equal(t, "robert", snap[1].Name)

	// 返回的是副本
	snap[1] = protocol.PlayerState{}
	assert.Equal(t, "robert", c.Players()[1].Name)
}

func TestDial_Rejected(t *testing.T) {
	fs := newFakeServer(t)
	res := dialAsync(fs.addr(), "", "dup")
	conn, r := fs.accept(t)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.ReadFrame(r, 0)
	require.NoError(t, err)

	fs.write(t, conn, protocol.Rejection{Error: protocol.ErrClientAlreadyConnected})
	dr := <-res
	assert.ErrorIs(t, dr.err, client.ErrAlreadyConnected)
	assert.Nil(t, dr.c)
}

func TestDial_ClosedWithoutReply(t *testing.T) {
	fs := newFakeServer(t)
	res := dialAsync(fs.addr(), "", "full")
	conn, _ := fs.accept(t)
	_ = conn.Close()

	dr := <-res
	assert.Error(t, dr.err)
	assert.NotErrorIs(t, dr.err, client.ErrAlreadyConnected)
}

func TestDial_UnknownCodec(t *testing.T) {
	_, err := client.Dial(context.Background(), "127.0.0.1:1", "", "", client.Options{Codec: "xml"})
	assert.Error(t, err)
}

func TestClient_ServerDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	res := dialAsync(fs.addr(), "", "id-2")
	conn, r := fs.accept(t)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.ReadFrame(r, 0)
	require.NoError(t, err)
	fs.write(t, conn, protocol.Snapshot{})
	dr := <-res
	require.NoError(t, dr.err)
	c := dr.c

	_ = conn.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice disconnect")
	}
	assert.False(t, c.Connected())
	assert.Error(t, c.Err())
	assert.ErrorIs(t, c.SendInput(protocol.MoveUp), client.ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.WaitFor(ctx, func(s protocol.Snapshot) bool { return len(s) > 0 })
	assert.Error(t, err)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	res := dialAsync(fs.addr(), "", "")
	conn, r := fs.accept(t)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.ReadFrame(r, 0)
	require.NoError(t, err)
	fs.write(t, conn, protocol.Snapshot{})
	dr := <-res
	require.NoError(t, dr.err)

	require.NoError(t, dr.c.Close())
	require.NoError(t, dr.c.Close())
	assert.False(t, dr.c.Connected())

	// 服务端看到连接关闭
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = protocol.ReadFrame(r, 0)
	assert.Error(t, err)
}

func TestNewIdentity_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := client.NewIdentity()
		assert.Len(t, id, 36)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
