package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BuildInfo 由 cmd/api 通过 -ldflags 注入
type BuildInfo struct {
	ServiceName string
	Version     string
	Commit      string
	BuildTime   string
}

// ReadyCheck 返回 nil 表示依赖（数据库）可用
type ReadyCheck func(ctx context.Context) error

// AdminHandler 管理端路由：/metrics、/readyz、/version，pprof 可选。
func AdminHandler(info BuildInfo, ready ReadyCheck, enablePprof bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// 数据库连接状态检测
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if ready != nil {
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("DB Ping Err"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("DB ready"))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": info.ServiceName,
			"version":      info.Version,
			"commit":       info.Commit,
			"build_time":   info.BuildTime,
			"go_version":   runtime.Version(),
		})
	})

	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}
