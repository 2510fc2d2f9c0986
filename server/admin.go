package server

import (
	"encoding/json"
	"net/http"
)

// Handler 管理与监控接口，以及浏览器用的 WebSocket 入口
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/admin/state", s.HandleState)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// HandleAdminConfig 读取与热更新移动步长
// GET  /admin/config 返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	type cfg struct {
		Speed         *float64 `json:"speed,omitempty"`
		DiagonalSpeed *float64 `json:"diagonalSpeed,omitempty"`
		MaxPlayers    int      `json:"maxPlayers,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		speed, diagonal := s.world.Speeds()
		writeJSON(w, http.StatusOK, cfg{Speed: &speed, DiagonalSpeed: &diagonal, MaxPlayers: s.world.MaxPlayers()})
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if (body.Speed != nil && *body.Speed <= 0) || (body.DiagonalSpeed != nil && *body.DiagonalSpeed <= 0) {
			http.Error(w, "speeds must be positive", http.StatusBadRequest)
			return
		}
		var speed, diagonal float64
		if body.Speed != nil {
			speed = *body.Speed
		}
		if body.DiagonalSpeed != nil {
			diagonal = *body.DiagonalSpeed
		}
		s.world.SetSpeeds(speed, diagonal)
		speed, diagonal = s.world.Speeds()
		Log.Infof("config updated: speed=%.2f diagonal=%.2f", speed, diagonal)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleState 输出当前世界快照（始终为 JSON，与线上编解码无关）
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Snapshot())
}

// HandleMetrics 输出运行指标
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"players":     s.world.Len(),
		"pending":     s.world.Pending(),
		"max_players": s.world.MaxPlayers(),
		"metrics":     s.metrics.Snapshot(),
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
