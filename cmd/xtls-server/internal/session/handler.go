package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/tlscontext"
)

// Handler implements core.ConnectionHandler: a TLS handshake against the
// shared context followed by HTTP/1.x request/response exchanges.
type Handler struct {
	TLS            *tlscontext.Context
	RequestHandler http.Handler

	// Zero disables the corresponding deadline.
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration

	// MaxHeaderBytes caps the request line plus headers of each request.
	// Zero means http.DefaultMaxHeaderBytes.
	MaxHeaderBytes int

	// OnStateChange, if set, observes every transition.
	OnStateChange func(connID string, from, to State)
}

const (
	discardTimeout  = 500 * time.Millisecond
	maxDiscardBytes = 256 << 10
)

type connection struct {
	h     *Handler
	id    string
	raw   net.Conn
	state State
	log   *slog.Logger
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(ctx context.Context, rawConn net.Conn) {
	c := &connection{
		h:     h,
		id:    uuid.NewString(),
		raw:   rawConn,
		state: StateAccepted,
	}
	c.log = logger.With("conn_id", c.id, "remote_addr", rawConn.RemoteAddr().String())
	defer rawConn.Close()

	// 1. Handshake
	c.transition(StateHandshaking)
	tlsConn := h.TLS.Server(rawConn)
	if err := c.handshake(ctx, tlsConn); err != nil {
		c.log.Warn("TLS handshake failed", "error", err)
		c.transition(StateHandshakeFailed)
		return
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	c.log.Info("TLS handshake successful",
		"protocol", tlsVersionName(state.Version),
		"cipher_suite", tls.CipherSuiteName(state.CipherSuite),
		"server_name", state.ServerName)
	c.transition(StateEstablished)

	// 2. Request/response exchanges
	c.transition(StateServing)
	served, err := c.serve(ctx, tlsConn, &state)
	if err != nil {
		c.log.Error("Serve failed", "error", err, "requests", served)
		c.transition(StateServeError)
		return
	}

	c.log.Debug("Connection closed", "requests", served)
	c.transition(StateClosed)
}

func (c *connection) transition(to State) {
	from := c.state
	if !canTransition(from, to) {
		c.log.Error("Invalid connection state transition", "from", from, "to", to)
		return
	}
	c.state = to
	c.log.Debug("Connection state changed", "from", from, "to", to)
	if c.h.OnStateChange != nil {
		c.h.OnStateChange(c.id, from, to)
	}
}

func (c *connection) handshake(ctx context.Context, tlsConn *tls.Conn) error {
	if c.h.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.h.HandshakeTimeout)
		defer cancel()
	}
	return tlsConn.HandshakeContext(ctx)
}

// serve reads requests until the peer closes, the idle timeout passes, or
// ctx is cancelled (nil error), or an I/O or protocol error occurs.
func (c *connection) serve(ctx context.Context, tlsConn *tls.Conn, state *tls.ConnectionState) (int, error) {
	lr := &io.LimitedReader{R: tlsConn, N: math.MaxInt64}
	br := bufio.NewReader(lr)
	bw := bufio.NewWriter(tlsConn)
	served := 0

	for {
		// The bufio slack matches net/http's header read limit.
		lr.N = int64(c.h.maxHeaderBytes()) + 4096
		if err := c.setDeadline(tlsConn.SetReadDeadline, c.h.IdleTimeout); err != nil {
			return served, fmt.Errorf("failed to set read deadline: %w", err)
		}

		// Wait for the first byte of the next request so a clean close
		// between requests is told apart from a truncated request.
		if _, err := br.Peek(1); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return served, nil
			case isTimeout(err):
				c.log.Debug("Idle timeout reached", "timeout", c.h.IdleTimeout)
				return served, nil
			case ctx.Err() != nil:
				return served, nil
			default:
				return served, fmt.Errorf("failed to read request: %w", err)
			}
		}

		req, err := http.ReadRequest(br)
		if err != nil {
			if lr.N <= 0 {
				c.writeError(tlsConn, bw, http.StatusRequestHeaderFieldsTooLarge)
				c.discardInput(tlsConn)
				return served, fmt.Errorf("request headers exceed %d bytes", c.h.maxHeaderBytes())
			}
			c.writeError(tlsConn, bw, http.StatusBadRequest)
			return served, fmt.Errorf("failed to parse request: %w", err)
		}
		lr.N = math.MaxInt64
		req.RemoteAddr = c.raw.RemoteAddr().String()
		req.TLS = state
		req = req.WithContext(ctx)

		rw := newResponseWriter()
		c.h.RequestHandler.ServeHTTP(rw, req)

		// Unread body bytes would be parsed as the next request.
		if _, err := io.Copy(io.Discard, req.Body); err != nil {
			return served, fmt.Errorf("failed to drain request body: %w", err)
		}
		req.Body.Close()

		closeAfter := req.Close || rw.wantsClose()
		if err := c.setDeadline(tlsConn.SetWriteDeadline, c.h.WriteTimeout); err != nil {
			return served, fmt.Errorf("failed to set write deadline: %w", err)
		}
		if err := rw.response(req, closeAfter).Write(bw); err != nil {
			return served, fmt.Errorf("failed to write response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return served, fmt.Errorf("failed to write response: %w", err)
		}
		served++

		c.log.Debug("Request served", "method", req.Method, "path", req.URL.Path, "status", rw.status)

		if closeAfter {
			return served, nil
		}
	}
}

func (c *connection) setDeadline(set func(time.Time) error, d time.Duration) error {
	if d <= 0 {
		return set(time.Time{})
	}
	return set(time.Now().Add(d))
}

func (h *Handler) maxHeaderBytes() int {
	if h.MaxHeaderBytes > 0 {
		return h.MaxHeaderBytes
	}
	return http.DefaultMaxHeaderBytes
}

func (c *connection) writeError(tlsConn *tls.Conn, bw *bufio.Writer, status int) {
	rw := newResponseWriter()
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(status)
	fmt.Fprintf(rw, "%d %s", status, http.StatusText(status))

	if err := c.setDeadline(tlsConn.SetWriteDeadline, c.h.WriteTimeout); err != nil {
		return
	}
	if err := rw.response(nil, true).Write(bw); err != nil {
		return
	}
	bw.Flush()
}

// discardInput reads what the peer already sent so closing with unread data
// does not reset the connection before the error response arrives.
func (c *connection) discardInput(tlsConn *tls.Conn) {
	if err := tlsConn.SetReadDeadline(time.Now().Add(discardTimeout)); err != nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(tlsConn, maxDiscardBytes))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("Unknown (%x)", version)
	}
}
