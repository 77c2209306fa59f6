package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bft-labs/possync/internal/ports"
)

// shutdownTimeout bounds draining of open bridge requests.
const shutdownTimeout = 5 * time.Second

// NewRouter registers all bridge endpoints on a new Gin engine.
// Callers choose the Gin mode.
func NewRouter(svc Service, logger ports.Logger) *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(logger))

	h := &handler{svc: svc, logger: logger}

	e.GET("/healthz", h.health)

	v1 := e.Group("/v1")
	v1.POST("/transactions", h.createTransaction)
	v1.GET("/transactions/pending", h.pending)
	v1.GET("/transactions/:id", h.getTransaction)

	v1.GET("/status", h.status)
	v1.GET("/status/stream", h.statusStream)
	v1.PUT("/connectivity", h.setConnectivity)
	v1.POST("/sync", h.syncNow)

	v1.GET("/products", h.getProducts)
	v1.PUT("/products", h.putProducts)
	v1.GET("/cart", h.getCart)
	v1.PUT("/cart", h.putCart)
	v1.DELETE("/cart", h.deleteCart)

	return e
}

func requestLogger(logger ports.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("bridge request",
			ports.String("method", c.Request.Method),
			ports.String("path", c.Request.URL.Path),
			ports.Int("status", c.Writer.Status()),
			ports.Duration("duration", time.Since(start)),
		)
	}
}

// Server runs the bridge until its context is canceled.
type Server struct {
	addr    string
	handler http.Handler
	logger  ports.Logger
}

// NewServer creates a bridge server listening on addr.
func NewServer(addr string, handler http.Handler, logger ports.Logger) *Server {
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled. Request contexts derive from ctx
// so open status streams end on shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("bridge listening", ports.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("bridge shutdown", ports.Err(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
