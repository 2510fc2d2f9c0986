// Package protocol 定义客户端与服务端之间的消息词汇、编解码器与分帧格式
package protocol

// PlayerID 服务端分配的玩家编号（进程内单调递增，不复用）
type PlayerID int64

// Movement 移动位掩码：上/下/左/右各占一位，0~15 均为合法值
type Movement uint8

const (
	MoveNone  Movement = 0
	MoveUp    Movement = 1 << 0
	MoveDown  Movement = 1 << 1
	MoveLeft  Movement = 1 << 2
	MoveRight Movement = 1 << 3

	// moveMask 只保留四个方向位，更高位忽略
	moveMask = MoveUp | MoveDown | MoveLeft | MoveRight
)

// Has 判断掩码中是否包含某个方向
func (m Movement) Has(dir Movement) bool { return m&dir != 0 }

// Normalize 清除未定义的高位
func (m Movement) Normalize() Movement { return m & moveMask }

func (m Movement) String() string {
	m = m.Normalize()
	if m == MoveNone {
		return "None"
	}
	var s string
	for _, d := range []struct {
		bit  Movement
		name string
	}{{MoveUp, "Up"}, {MoveDown, "Down"}, {MoveLeft, "Left"}, {MoveRight, "Right"}} {
		if m.Has(d.bit) {
			if s != "" {
				s += "-"
			}
			s += d.name
		}
	}
	return s
}

// Handshake 连接建立后的第一条消息，movement 字段在握手阶段被忽略
type Handshake struct {
	Movement Movement `json:"movement" msgpack:"movement"`
	Name     string   `json:"name,omitempty" msgpack:"name,omitempty"`
	ClientID string   `json:"client_id,omitempty" msgpack:"client_id,omitempty"`
}

// Input 握手之后周期性发送的移动输入；name 非空时覆盖玩家名
type Input struct {
	Movement Movement `json:"movement" msgpack:"movement"`
	Name     string   `json:"name,omitempty" msgpack:"name,omitempty"`
}

// PlayerState 快照中单个玩家的可序列化状态（连接等传输字段永不序列化）
type PlayerState struct {
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Name     string  `json:"name" msgpack:"name"`
	ClientID string  `json:"client_id" msgpack:"client_id"`
}

// Snapshot 完整世界状态，永远是全量而非增量
type Snapshot map[PlayerID]PlayerState

// Clone 返回快照副本
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, p := range s {
		out[id] = p
	}
	return out
}

// ErrClientAlreadyConnected 身份冲突时发送给客户端的错误码
const ErrClientAlreadyConnected = "CLIENT_ALREADY_CONNECTED"

// Rejection 握手被拒绝时的唯一应答
type Rejection struct {
	Error string `json:"error" msgpack:"error"`
}
