package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/localbridge/localbridged/pkg/jsonrpc"
	"github.com/localbridge/localbridged/pkg/log"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// serveConn reads frames from conn until EOF or a fatal I/O error,
// dispatching each well-formed request to its own goroutine so
// completions may arrive out of request order (spec.md §4.1: "fully
// concurrent completion ordering allowed"). The write side is serialized
// per connection so response frames never interleave.
func (s *Server) serveConn(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := jsonrpc.NewReader(conn)
	writer := jsonrpc.NewWriter(conn)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, jsonrpc.ErrFrameTooLarge) {
				_ = writer.WriteResponse(jsonrpc.Fail(jsonrpc.NullID, rpcerr.ParseError.Code(), "frame exceeds buffer ceiling", nil))
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Logf("- connection read error: %v", err)
			}
			return
		}

		var req jsonrpc.Request
		if err := req.UnmarshalFrame(frame); err != nil {
			_ = writer.WriteResponse(jsonrpc.Fail(jsonrpc.NullID, rpcerr.ParseError.Code(), err.Error(), nil))
			continue
		}

		if len(req.ID) == 0 {
			// Notifications are not used by any first-party client
			// (spec.md §4.1) and are rejected outright.
			_ = writer.WriteResponse(jsonrpc.Fail(jsonrpc.NullID, rpcerr.InvalidRequest.Code(), "notifications are not supported", nil))
			continue
		}

		wg.Add(1)
		go func(req jsonrpc.Request) {
			defer wg.Done()
			resp := s.handler(connCtx, req)
			resp.ID = req.ID
			if err := writer.WriteResponse(resp); err != nil {
				log.Logf("- connection write error: %v", err)
			}
		}(req)
	}
}
