package app

import (
	"context"
	"fmt"
	"net"

	k8s "k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/api"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/config"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/core"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/factory"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/tlscontext"
)

// App runs the startup sequence: credentials, TLS context, bind, serve.
type App struct {
	cfg *config.Config

	// Listen binds the main socket.
	Listen func(address string) (net.Listener, error)
	// KubeClient is consulted only in kubernetes TLS mode.
	KubeClient func(cfg *config.Config) (k8s.Interface, error)
	// OnListening, if set, is called once the listener is bound.
	OnListening func(addr net.Addr)
}

func New(cfg *config.Config) *App {
	return &App{
		cfg:    cfg,
		Listen: core.Bind,
		KubeClient: func(cfg *config.Config) (k8s.Interface, error) {
			clientset, err := factory.NewKubeClient(cfg)
			if err != nil {
				return nil, err
			}
			return clientset, nil
		},
	}
}

// Run blocks until ctx is cancelled or the listener fails. Every startup
// error is returned before any socket is bound.
func (a *App) Run(ctx context.Context) error {
	tlsContext, err := a.buildTLSContext(ctx)
	if err != nil {
		return err
	}

	handler, err := factory.NewHandlerFactory(a.cfg).Create(tlsContext)
	if err != nil {
		return err
	}

	listener, err := a.Listen(a.cfg.BindAddress)
	if err != nil {
		return err
	}
	logger.Info("Server listening",
		"addr", listener.Addr().String(),
		"max_connections", a.cfg.MaxConnections)

	var health *api.HealthServer
	if a.cfg.HealthServerPort != "" {
		health = api.NewHealthServer(":" + a.cfg.HealthServerPort)
		if err := health.Start(); err != nil {
			listener.Close()
			return fmt.Errorf("failed to start health server: %w", err)
		}
		logger.Info("Health server started", "port", a.cfg.HealthServerPort)
	}

	server := &core.Server{
		Listener:          listener,
		ConnectionHandler: handler,
		MaxConnections:    a.cfg.MaxConnections,
	}

	if health != nil {
		health.SetReady(true)
	}
	if a.OnListening != nil {
		a.OnListening(listener.Addr())
	}
	logger.Info("Server is ready to accept connections")

	serveErr := server.Serve(ctx)

	if health != nil {
		health.SetReady(false)
	}
	logger.Info("Stopped accepting connections, draining",
		"active", server.ActiveConnections(),
		"timeout", a.cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Drain timed out, remaining connections closed", "error", err)
	}
	if health != nil {
		if err := health.Stop(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown failed", "error", err)
		}
	}

	if serveErr != nil {
		return fmt.Errorf("accept loop stopped: %w", serveErr)
	}
	logger.Info("Server stopped")
	return nil
}

func (a *App) buildTLSContext(ctx context.Context) (*tlscontext.Context, error) {
	var clientset k8s.Interface
	if a.cfg.TLSMode == config.TLSModeKubernetes {
		var err error
		clientset, err = a.KubeClient(a.cfg)
		if err != nil {
			return nil, err
		}
	}

	tlsFactory := factory.NewTLSFactory(a.cfg)
	provider, err := tlsFactory.Create(ctx, clientset)
	if err != nil {
		return nil, err
	}

	creds, err := tlsFactory.EnsureCredentials(ctx, provider)
	if err != nil {
		return nil, err
	}

	minVersion, err := a.cfg.MinTLSVersion()
	if err != nil {
		return nil, err
	}

	tlsContext, err := tlscontext.BuildFromCredentials(creds, tlscontext.Options{MinVersion: minVersion})
	if err != nil {
		return nil, err
	}

	logger.Info("TLS context ready",
		"subject", tlsContext.Subject(),
		"not_after", tlsContext.NotAfter(),
		"chain_length", len(creds.Chain),
		"key_encoding", creds.Key.Family)
	return tlsContext, nil
}
