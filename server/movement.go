package server

import "dashdash/protocol"

const (
	// DefaultSpeed 直线移动步长
	DefaultSpeed = 5.0
	// DefaultDiagonalSpeed 斜向移动步长（略慢以平衡斜向位移）
	DefaultDiagonalSpeed = 3.5
)

// Step 将移动掩码分解为独立的水平/竖直单位位移，相反方向互相抵消
func Step(m protocol.Movement) (dx, dy float64) {
	if m.Has(protocol.MoveUp) {
		dy--
	}
	if m.Has(protocol.MoveDown) {
		dy++
	}
	if m.Has(protocol.MoveLeft) {
		dx--
	}
	if m.Has(protocol.MoveRight) {
		dx++
	}
	return dx, dy
}

// Integrate 对坐标执行一次移动。不做边界裁剪，也不做碰撞检测。
func Integrate(x, y float64, m protocol.Movement, speed, diagonal float64) (float64, float64) {
	dx, dy := Step(m)
	s := speed
	if dx != 0 && dy != 0 {
		s = diagonal
	}
	return x + dx*s, y + dy*s
}
