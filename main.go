package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dashdash/server"
)

// Dash Dash 服务端入口：加载配置，启动 TCP 监听、广播器与可选的 HTTP 管理接口
func main() {
	var (
		configPath string
		host       string
		port       int
		maxPlayers int
		save       bool
	)
	flag.StringVar(&configPath, "config", server.DefaultConfigPath, "path to server_config.yaml")
	flag.StringVar(&host, "H", "", "host address (overrides config)")
	flag.StringVar(&host, "host", "", "host address (overrides config)")
	flag.IntVar(&port, "p", 0, "port number (overrides config)")
	flag.IntVar(&port, "port", 0, "port number (overrides config)")
	flag.IntVar(&maxPlayers, "m", 0, "maximum players (overrides config)")
	flag.IntVar(&maxPlayers, "max-players", 0, "maximum players (overrides config)")
	flag.BoolVar(&save, "save", false, "save command-line overrides to the config file")
	flag.Parse()

	// 加载配置前先启用控制台日志
	if err := server.InitLogger("", "info"); err != nil {
		panic(err)
	}
	cfg, err := server.LoadConfig(configPath)
	switch {
	case errors.Is(err, server.ErrConfigMalformed):
		server.Log.Warnf("error loading config: %v; using defaults", err)
	case err != nil:
		server.Log.Fatalf("load config: %v", err)
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if maxPlayers != 0 {
		cfg.MaxPlayers = maxPlayers
	}

	// 使用 zap 日志写入控制台与滚动文件
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		server.Log.Fatalf("init logger: %v", err)
	}
	defer server.SyncLogger()

	if save {
		if err := server.SaveConfig(configPath, cfg); err != nil {
			server.Log.Fatalf("save config: %v", err)
		}
		server.Log.Infof("configuration saved to %s", configPath)
	}

	srv, err := server.New(cfg)
	if err != nil {
		server.Log.Fatalf("%v", err)
	}
	// 端口绑定失败对整个进程是致命的
	if err := srv.Listen(); err != nil {
		server.Log.Fatalf("listen: %v", err)
	}
	server.Log.Infow("Dash Dash game server started",
		"addr", srv.Addr().String(),
		"max_players", cfg.MaxPlayers,
		"codec", cfg.Codec,
		"config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Serve(ctx); err != nil {
			server.Log.Errorf("serve: %v", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			server.Log.Infof("admin/websocket listening on %s", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Log.Fatalf("http listen: %v", err)
			}
		}()
	}

	// 优雅退出（Ctrl+C）：停止接受新连接，不等待已有会话
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	_ = srv.Close()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	server.Log.Info("Server stopped")
}
