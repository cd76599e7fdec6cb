package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/climagrid/internal/logger"
	"github.com/tphakala/climagrid/internal/observability/metrics"
)

const readHeaderTimeout = 10 * time.Second

// Endpoint serves the Prometheus /metrics handler.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint creates a metrics endpoint listening on listenAddress.
// An empty address means metrics are disabled and is reported as an error.
func NewEndpoint(listenAddress string, m *Metrics, log logger.Logger) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, fmt.Errorf("metrics listen address not configured")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if log == nil {
		log = logger.Global().Module("metrics")
	}

	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       m,
		log:           log,
	}, nil
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	return e.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (e *Endpoint) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.log.Info("Metrics endpoint starting", logger.String("address", listener.Addr().String()))
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	e.log.Info("Stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("Metrics server shutdown error", logger.Error(err))
		return err
	}
	<-serveErr
	return nil
}
