package server

// IdentityRegistry 记录当前被活跃会话占用的客户端身份。
// 本身不加锁，所有调用必须持有 World 的互斥锁，
// 这样握手时的"检查身份 + 插入玩家"对其他会话来说是一个原子步骤。
type IdentityRegistry struct {
	ids map[string]struct{}
}

func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{ids: make(map[string]struct{})}
}

// Register 登记身份；非空且已存在时返回 false 且不做任何修改，空身份总是成功
func (r *IdentityRegistry) Register(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Release 释放身份，不存在时为空操作
func (r *IdentityRegistry) Release(id string) {
	delete(r.ids, id)
}

// Contains 身份是否被占用
func (r *IdentityRegistry) Contains(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *IdentityRegistry) Len() int { return len(r.ids) }
