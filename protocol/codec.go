package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed 消息无法解码（截断、类型错误、空文档等）
var ErrMalformed = errors.New("protocol: malformed message")

// Codec 将单条逻辑消息编码为自描述文档
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// NewCodec 按名称创建编解码器，空名称使用 JSON
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return jsonCodec{}, nil
	case CodecMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return CodecJSON }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return CodecMsgpack }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// DecodeHandshake 解码握手消息
func DecodeHandshake(c Codec, data []byte) (Handshake, error) {
	var hs Handshake
	if err := decode(c, data, &hs); err != nil {
		return Handshake{}, err
	}
	hs.Movement = hs.Movement.Normalize()
	return hs, nil
}

// DecodeInput 解码移动输入
func DecodeInput(c Codec, data []byte) (Input, error) {
	var in Input
	if err := decode(c, data, &in); err != nil {
		return Input{}, err
	}
	in.Movement = in.Movement.Normalize()
	return in, nil
}

// DecodeSnapshot 解码世界快照
func DecodeSnapshot(c Codec, data []byte) (Snapshot, error) {
	snap := Snapshot{}
	if err := decode(c, data, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RejectedError 服务端以 Rejection 应答握手
type RejectedError struct {
	Code string
}

func (e *RejectedError) Error() string { return "protocol: handshake rejected: " + e.Code }

// DecodeReply 解码握手应答：成功时为快照，失败时返回 *RejectedError
func DecodeReply(c Codec, data []byte) (Snapshot, error) {
	var rej Rejection
	if err := c.Unmarshal(data, &rej); err == nil && rej.Error != "" {
		return nil, &RejectedError{Code: rej.Error}
	}
	return DecodeSnapshot(c, data)
}

func decode(c Codec, data []byte, v any) error {
	if len(data) == 0 {
		return ErrMalformed
	}
	if err := c.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
