package factory

import (
	"fmt"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/config"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/session"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/tlscontext"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/web"
)

// HandlerFactory creates the per-connection handler
type HandlerFactory struct {
	cfg *config.Config
}

// NewHandlerFactory creates a new handler factory
func NewHandlerFactory(cfg *config.Config) *HandlerFactory {
	return &HandlerFactory{cfg: cfg}
}

// Create wires the shared TLS context and the site into a session handler.
func (f *HandlerFactory) Create(tlsContext *tlscontext.Context) (*session.Handler, error) {
	if tlsContext == nil {
		return nil, fmt.Errorf("TLS context is required")
	}

	site, err := web.New(f.cfg.TemplatesDir, f.cfg.PublicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create request handler: %w", err)
	}

	logger.Info("Creating connection handler",
		"handshake_timeout", f.cfg.HandshakeTimeout,
		"idle_timeout", f.cfg.IdleTimeout,
		"write_timeout", f.cfg.WriteTimeout)

	return &session.Handler{
		TLS:              tlsContext,
		RequestHandler:   site,
		HandshakeTimeout: f.cfg.HandshakeTimeout,
		IdleTimeout:      f.cfg.IdleTimeout,
		WriteTimeout:     f.cfg.WriteTimeout,
	}, nil
}
