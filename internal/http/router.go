package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/bus"
	"github.com/Jithendra123892/LAPSO/internal/websocket"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter 创建路由
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDeviceRoutes 注册设备采集/查询路由
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.Handle("/api/devices/register", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Register(w, req)
	})

	r.Handle("/api/devices/update", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Update(w, req)
	})
	// 旧版 agent 用单数路径
	r.Handle("/api/device/update", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Update(w, req)
	})

	r.Handle("/api/devices/realtime", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Realtime(w, req)
	})

	r.Handle("/api/devices/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, req)
	})

	r.Handle("/api/location/monitoring-stats", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.MonitoringStats(w, req)
	})

	// /api/devices/{id} 及其动作子路径
	r.Handle("/api/devices/", func(w http.ResponseWriter, req *http.Request) {
		path := strings.TrimPrefix(req.URL.Path, "/api/devices/")
		if path == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		// 动作路径: {id}/found | {id}/stolen | {id}/heartbeat
		if deviceID, action, ok := strings.Cut(path, "/"); ok {
			if deviceID == "" || strings.Contains(action, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			switch action {
			case "found":
				h.MarkFound(w, req, deviceID)
			case "stolen":
				h.MarkStolen(w, req, deviceID)
			case "heartbeat":
				h.Heartbeat(w, req, deviceID)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
			return
		}

		// 单设备路径: GET / DELETE /api/devices/{id}
		deviceID := path
		switch req.Method {
		case http.MethodGet:
			h.GetDevice(w, req, deviceID)
		case http.MethodDelete:
			h.Remove(w, req, deviceID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterSubscriptionRoutes 注册 WebSocket 订阅路由
func (r *Router) RegisterSubscriptionRoutes(hub *websocket.Hub) {
	// owner 范围的报警订阅
	r.Handle("/ws/alerts", func(w http.ResponseWriter, req *http.Request) {
		owner := req.URL.Query().Get("owner")
		if owner == "" {
			writeJSON(w, http.StatusBadRequest, Fail("owner query parameter is required"))
			return
		}
		hub.ServeTopic(w, req, bus.AlertTopic(owner))
	})

	// 广播快照订阅（仪表盘）
	r.Handle("/ws/updates", func(w http.ResponseWriter, req *http.Request) {
		hub.ServeTopic(w, req, bus.TopicDeviceUpdates)
	})
}
