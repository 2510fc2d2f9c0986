package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dashdash/protocol"
)

// DefaultConfigPath 默认配置文件位置
const DefaultConfigPath = "server/server_config.yaml"

// Config 服务端配置（YAML 文件 + 命令行覆盖）
type Config struct {
	Host          string  `yaml:"host"`
	Port          int     `yaml:"port"`
	MaxPlayers    int     `yaml:"max_players"`
	PlayerSpeed   float64 `yaml:"player_speed"`
	DiagonalSpeed float64 `yaml:"diagonal_speed"`
	SpawnX        float64 `yaml:"spawn_x"`
	SpawnY        float64 `yaml:"spawn_y"`

	Codec            string        `yaml:"codec"`             // json 或 msgpack，客户端需一致
	MaxFrameSize     int           `yaml:"max_frame_size"`    // 单帧上限（字节）
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // 准入后等待握手的期限，0 表示无限等待
	ReadTimeout      time.Duration `yaml:"read_timeout"`      // Active 阶段读期限，0 表示无限等待
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // 0 表示不设写期限；慢对端只会阻塞自己的写协程
	InputRate        float64       `yaml:"input_rate"`        // 每秒输入上限，0 关闭限流
	InputBurst       int           `yaml:"input_burst"`

	HTTPAddr       string   `yaml:"http_addr"`                 // 管理/监控/WebSocket 入口，空则不启动
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // WebSocket 允许的 Origin，空则仅同源，"*" 不限
	LogFile        string   `yaml:"log_file"`
	LogLevel       string   `yaml:"log_level"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             50000,
		MaxPlayers:       8,
		PlayerSpeed:      DefaultSpeed,
		DiagonalSpeed:    DefaultDiagonalSpeed,
		SpawnX:           400,
		SpawnY:           300,
		Codec:            protocol.CodecJSON,
		MaxFrameSize:     protocol.DefaultMaxFrameSize,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		InputBurst:       10,
		LogFile:          "server.log",
		LogLevel:         "info",
	}
}

// Addr 监听地址 host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorldConfig 提取世界参数
func (c Config) WorldConfig() WorldConfig {
	return WorldConfig{
		MaxPlayers:    c.MaxPlayers,
		SpawnX:        c.SpawnX,
		SpawnY:        c.SpawnY,
		Speed:         c.PlayerSpeed,
		DiagonalSpeed: c.DiagonalSpeed,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxPlayers < 1 {
		errs = append(errs, fmt.Errorf("max_players must be >= 1, got %d", c.MaxPlayers))
	}
	if c.PlayerSpeed <= 0 || c.DiagonalSpeed <= 0 {
		errs = append(errs, errors.New("player_speed and diagonal_speed must be positive"))
	}
	if _, err := protocol.NewCodec(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.MaxFrameSize < 64 || c.MaxFrameSize > 16<<20 {
		errs = append(errs, fmt.Errorf("max_frame_size %d out of range [64, 16MiB]", c.MaxFrameSize))
	}
	if c.HandshakeTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.InputRate < 0 {
		errs = append(errs, errors.New("input_rate must not be negative"))
	}
	if c.InputRate > 0 && c.InputBurst < 1 {
		errs = append(errs, errors.New("input_burst must be >= 1 when input_rate is set"))
	}
	return errors.Join(errs...)
}

// LoadConfig 读取配置文件，缺失的键使用默认值。
// 文件不存在时写出一份默认配置；文件损坏时返回默认配置与 ErrConfigMalformed，
// 由调用方记录告警，原文件不被覆盖。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		Log.Infof("config file %s not found, creating default", path)
		return cfg, SaveConfig(path, cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
	}
	return cfg, nil
}

// SaveConfig 写出配置文件，必要时创建目录
func SaveConfig(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
