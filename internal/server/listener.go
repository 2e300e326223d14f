// Package server binds the gateway's listening socket.
package server

import (
	"fmt"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"

	"nookipedia-gateway/internal/config"
)

// proxyHeaderTimeout bounds how long a new connection may take to send its
// PROXY header.
const proxyHeaderTimeout = 5 * time.Second

// Listen binds cfg.Addr(). With proxy_protocol enabled, connections are
// expected to start with a PROXY v1/v2 header from a load balancer and the
// address it carries becomes the connection's remote address.
func Listen(cfg *config.ServerConfig) (net.Listener, error) {
	addr := cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if !cfg.ProxyProtocol {
		return ln, nil
	}
	return &proxyproto.Listener{
		Listener:          ln,
		ReadHeaderTimeout: proxyHeaderTimeout,
	}, nil
}
