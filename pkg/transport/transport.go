// Package transport implements the daemon's single local endpoint: a
// Unix domain socket, owner-only permissions, same-UID peer
// authentication, and one goroutine per accepted connection dispatching
// newline-delimited JSON-RPC frames (spec.md §4.1).
package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/log"
)

// Handler processes one parsed request and returns its response.
// Implementations must not block past ctx's cancellation.
type Handler func(ctx context.Context, req jsonrpc.Request) jsonrpc.Response

// Server listens on a Unix domain socket and dispatches every accepted
// connection to Handler.
type Server struct {
	socketPath string
	handler    Handler

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a Server bound to socketPath. The socket is not
// opened until Serve is called.
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{socketPath: socketPath, handler: handler}
}

// Serve binds the socket (unlinking any stale one first, spec.md §6),
// restricts its permissions to the owning user, and accepts connections
// until ctx is canceled or a fatal listener error occurs.
func (s *Server) Serve(ctx context.Context) error {
	if err := removeStaleSocket(s.socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Logf("- accept error: %v", err)
			continue
		}

		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}

		if !peerIsSameUser(unixConn) {
			log.Logf("- rejecting connection from peer with mismatched uid")
			conn.Close()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, unixConn)
		}()
	}
}

func removeStaleSocket(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.Remove(path)
}
