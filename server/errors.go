package server

import "errors"

var (
	// ErrServerFull 已达人数上限，连接在握手前被静默关闭
	ErrServerFull = errors.New("server: server full")
	// ErrIdentityInUse 该客户端身份已被另一个活跃会话占用
	ErrIdentityInUse = errors.New("server: client identity already connected")
	// ErrUnknownPlayer 编号没有对应的预留槽位或玩家
	ErrUnknownPlayer = errors.New("server: unknown player")
	// ErrConfigMalformed 配置文件无法解析，已回退到默认配置
	ErrConfigMalformed = errors.New("server: malformed config file")
)
