package core

import (
	"context"
	"net"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
)

// ConnectionHandler takes full ownership of one accepted connection,
// including closing it. ctx is cancelled when the server force-stops.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

// ConnectionHandlerFunc adapts a function to ConnectionHandler.
type ConnectionHandlerFunc func(ctx context.Context, conn net.Conn)

func (f ConnectionHandlerFunc) HandleConnection(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// TLSProvider defines how to retrieve the server credentials.
// It abstracts away the storage mechanism (K8s Secret, File, memory).
type TLSProvider interface {
	GetCredentials(ctx context.Context) (*credentials.Credentials, error)
	Store(ctx context.Context, certPEM, keyPEM []byte) error
}
