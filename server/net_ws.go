package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dashdash/protocol"
)

// wsConn 让浏览器经 WebSocket 接入：每条 WS 消息即一帧，复用同一套准入与会话流程
type wsConn struct {
	ws           *websocket.Conn
	msgType      int
	writeTimeout time.Duration

	wmu sync.Mutex
}

// NewWSConn 包装已升级的 WebSocket 连接
func NewWSConn(ws *websocket.Conn, codec protocol.Codec, maxFrame int, writeTimeout time.Duration) Conn {
	ws.SetReadLimit(int64(maxFrame))
	msgType := websocket.BinaryMessage
	if codec.Name() == protocol.CodecJSON {
		msgType = websocket.TextMessage
	}
	return &wsConn{ws: ws, msgType: msgType, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		// 正常关闭帧等价于 TCP 上的零长度读
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, protocol.ErrFrameTooLarge
		}
		return nil, err
	}
	return payload, nil
}

func (c *wsConn) WriteFrame(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(c.msgType, payload)
}

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }
func (c *wsConn) Close() error                      { return c.ws.Close() }
func (c *wsConn) RemoteAddr() string                { return c.ws.RemoteAddr().String() }

// newUpgrader 按 allowed_origins 构造升级器。
// 列表为空时沿用 gorilla 的默认策略（仅同源或无 Origin 头）；"*" 放行所有来源。
func newUpgrader(origins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(origins) == 0 {
		return u
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		if allowed["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[strings.ToLower(origin)]
	}
	return u
}

// HandleWS WebSocket 接入：升级后与 TCP 连接走同一个准入入口
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}
	s.Admit(NewWSConn(ws, s.codec, s.cfg.MaxFrameSize, s.cfg.WriteTimeout))
}
