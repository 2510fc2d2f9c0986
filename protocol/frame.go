package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize 帧头：4 字节大端长度
	HeaderSize = 4
	// DefaultMaxFrameSize 单帧负载上限
	DefaultMaxFrameSize = 64 << 10
)

// ErrFrameTooLarge 帧长度超过上限，按协议错误处理
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// WriteFrame 以长度前缀写出一帧；帧头与负载一次写出，避免并发写交错
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame 读取一帧完整负载。
// 对端在帧边界处关闭时返回 io.EOF；帧中途关闭返回 io.ErrUnexpectedEOF。
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
