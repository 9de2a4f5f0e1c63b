package password

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// dial opens a connection to ep bounded by the session timeout. The
// returned release func closes the connection; cancelling ctx closes it
// early, unblocking any pending read.
func dial(ctx context.Context, ep Endpoint, cfg Config) (net.Conn, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	addr := net.JoinHostPort(ep.Host, ep.Port)

	var (
		conn net.Conn
		err  error
	)
	dialer := &net.Dialer{}
	if ep.Security == SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: cfg.tlsConfig(ep.Host)}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	release := func() {
		stop()
		cancel()
		_ = conn.Close()
	}
	return conn, release, nil
}
