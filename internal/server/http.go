package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
)

const shutdownTimeout = 5 * time.Second

type HTTPServer struct {
	address string
	handler http.Handler
	logger  *logger.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	wg     sync.WaitGroup
}

func NewHTTPServer(address string, handler http.Handler, logger *logger.Logger) (*HTTPServer, error) {
	if address == "" {
		return nil, errNoAddress
	}

	return &HTTPServer{
		address: address,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start implements workers.Worker. Listen errors are logged; the client
// keeps running without its status server.
func (h *HTTPServer) Start(ctx context.Context) {
	h.Stop()

	listener, err := net.Listen("tcp", h.address)
	if err != nil {
		h.logger.Err(err).Str("func", "HTTPServer.Start").Str("address", h.address).Msg("error listening")
		return
	}

	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	h.mu.Lock()
	h.server = srv
	h.addr = listener.Addr()
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Info().Str("address", listener.Addr().String()).Msg("Launching HTTP status server")

	go func() {
		defer h.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Err(err).Str("func", "HTTPServer.Start").Msg("HTTP server Serve")
		}
	}()
}

// Stop implements workers.Worker.
func (h *HTTPServer) Stop() {
	h.mu.Lock()
	srv := h.server
	h.server = nil
	h.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			h.logger.Err(err).Str("func", "HTTPServer.Stop").Msg("HTTP server Shutdown")
		}
		h.logger.Info().Msg("HTTP status server Shutdown")
	}
	h.wg.Wait()
}

// Addr returns the bound address once started, nil otherwise.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}
