package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/system"
)

const shutdownTimeout = 5 * time.Second

// Server runs the fire-control service: a fixed-step tick loop plus the HTTP,
// WebSocket and QUIC front ends.
type Server struct {
	cfg     config.ServerConfig
	svc     *Service
	auth    *TokenAuth
	logger  log.Log
	handler *HTTPHandler
	ws      *WebSocketHandler

	// TLS overrides the self-signed QUIC certificate when set.
	TLS *tls.Config

	running atomic.Bool
	ready   chan struct{}
	httpLn  net.Listener
	quicLn  *QUICListener
}

func New(cfg config.ServerConfig, svc *Service, logger log.Log) *Server {
	auth := NewTokenAuth(cfg.AuthToken)
	logger = logger.With(log.String("component", "server"))
	ws := NewWebSocketHandler(svc, logger)
	return &Server{
		cfg:     cfg,
		svc:     svc,
		auth:    auth,
		logger:  logger,
		handler: NewHTTPHandler(svc, ws, auth, logger),
		ws:      ws,
		ready:   make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Service() *Service { return s.svc }

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// HTTPAddr is the bound HTTP address, or nil when HTTP is disabled. Valid
// after Ready.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// QUICAddr is the bound QUIC address, or nil when QUIC is disabled. Valid
// after Ready.
func (s *Server) QUICAddr() net.Addr {
	if s.quicLn == nil {
		return nil
	}
	return s.quicLn.Addr()
}

// Run blocks until ctx is cancelled or a component fails, then shuts every
// component down and closes the service.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer func() { _ = s.svc.Close() }()

	loop, err := system.NewLoop(s.cfg.TickInterval(), s.svc.Locker(), s.logger)
	if err != nil {
		return err
	}
	loop.Register(s.svc)

	if s.cfg.HTTPAddr != "" {
		if s.httpLn, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
			return errors.Wrap(ErrListenerFailed, err.Error())
		}
	}
	if s.cfg.QUICAddr != "" {
		if s.quicLn, err = ListenQUIC(s.cfg.QUICAddr, s.TLS, s.svc, s.auth, s.logger); err != nil {
			if s.httpLn != nil {
				_ = s.httpLn.Close()
			}
			return err
		}
	}

	var httpSrv *http.Server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if s.httpLn != nil {
		httpSrv = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("HTTP listener started", log.String("address", s.httpLn.Addr().String()))
			if err := httpSrv.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "http")
			}
			return nil
		})
	}
	if s.quicLn != nil {
		g.Go(func() error { return s.quicLn.Serve(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var err error
		if httpSrv != nil {
			err = multierr.Append(
				errors.Wrap(httpSrv.Shutdown(shutdownCtx), "http shutdown"),
				errors.Wrap(s.ws.Close(), "websocket shutdown"))
		}
		if s.quicLn != nil {
			err = multierr.Append(err, errors.Wrap(s.quicLn.Close(), "quic shutdown"))
		}
		return err
	})
	close(s.ready)

	err = g.Wait()
	s.logger.Info("Server stopped", log.Uint64("frames", loop.Metrics().Frames))
	return err
}
