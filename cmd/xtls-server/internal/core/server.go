package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// BindError reports a listening socket that could not be created.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Bind opens the TCP listening socket.
func Bind(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, &BindError{Address: address, Err: err}
	}
	return ln, nil
}

// Server is the generic TCP accept loop.
// It depends ONLY on interfaces, not concrete implementations.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler

	// MaxConnections caps concurrently open connections; 0 disables the cap.
	// Accept blocks while the cap is reached.
	MaxConnections int

	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	wg          sync.WaitGroup
	cancelConns context.CancelFunc
}

// Serve accepts connections until ctx is cancelled, handing each one to
// ConnectionHandler on its own goroutine. Accept errors are logged and the
// loop continues. It returns nil after ctx is cancelled, or an error if the
// listener is closed from elsewhere.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.Listener
	if s.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.MaxConnections)
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancelConns = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			logger.Error("Accept failed", "error", err, "retry_in", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConnection(connCtx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.track(conn, false)
	defer func() {
		if r := recover(); r != nil {
			conn.Close()
			logger.Error("Connection handler panicked",
				"remote_addr", conn.RemoteAddr(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	// Delegate the entire lifecycle to the handler
	s.ConnectionHandler.HandleConnection(ctx, conn)
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// ActiveConnections reports the number of connections currently being handled.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown waits for in-flight connections to finish. When ctx expires first,
// the remaining connections are closed and ctx's error is returned.
// Call it after Serve has returned.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelConnContext()
		return nil
	case <-ctx.Done():
	}

	s.cancelConnContext()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	<-done
	return ctx.Err()
}

func (s *Server) cancelConnContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelConns != nil {
		s.cancelConns()
	}
}
