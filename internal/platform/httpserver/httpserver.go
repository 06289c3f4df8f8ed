package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"urlshortener.local/internal/platform/config"
)

// New 创建对外业务的 http.Server，超时全部来自配置。
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.Addr, handler)
}

// NewAdmin 创建管理端口的 http.Server，建议只监听 127.0.0.1。
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.AdminAddr, handler)
}

func newServer(cfg config.Config, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	srv.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	srv.ReadTimeout = cfg.ReadTimeout
	srv.WriteTimeout = cfg.WriteTimeout
	srv.IdleTimeout = cfg.IdleTimeout
	return srv
}

// Serve 先同步监听（端口被占用立即返回错误），再服务到 ctx 结束，
// 之后最多等 grace 让进行中的请求处理完。
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	slog.Info("http server shutting down", "addr", ln.Addr().String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}
