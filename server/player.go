package server

import (
	"fmt"

	"dashdash/protocol"
)

// PlayerID 玩家唯一编号（与线上格式共用）
type PlayerID = protocol.PlayerID

// Player 世界中的玩家实体（服务端权威状态）
type Player struct {
	ID       PlayerID
	X        float64
	Y        float64
	Name     string
	ClientID string // 可为空，空身份不参与去重
}

// DefaultName 未提供名字时合成的默认名
func DefaultName(id PlayerID) string {
	return fmt.Sprintf("Player%d", id)
}

// State 转换为可序列化的快照条目
func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{X: p.X, Y: p.Y, Name: p.Name, ClientID: p.ClientID}
}
