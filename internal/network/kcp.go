package network

import (
	"context"
	"fmt"
	"net"

	"github.com/xtaci/kcp-go/v5"
)

// kcpListener отдаёт настроенные KCP сессии как net.Conn
type kcpListener struct {
	*kcp.Listener
}

// Accept принимает KCP сессию и включает потоковый режим
func (l kcpListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tuneKCP(conn)
	return conn, nil
}

// tuneKCP настройки сессии для интерактивного трафика
func tuneKCP(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	conn.SetWindowSize(512, 512) // Увеличиваем окно для пропускной способности
	conn.SetMtu(1400)            // Стандартный MTU для интернета
}

// ListenKCP открывает KCP слушатель без шифрования и FEC
func ListenKCP(addr string) (net.Listener, error) {
	ln, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return kcpListener{ln}, nil
}

// ListenAndServeKCP принимает classic поток поверх KCP
func (srv *Server) ListenAndServeKCP(ctx context.Context, addr string) error {
	ln, err := ListenKCP(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}
