package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server serves the output tree with live reload.
type Server struct {
	// Root is the directory served at "/".
	Root string

	// Addr is the listen address, e.g. "localhost:3000".
	Addr string

	// CORS allows every origin when set.
	CORS bool

	Hub    *Hub
	Logger *slog.Logger

	mu         sync.Mutex
	listenAddr string
	done       chan struct{}
}

// New returns a server for root with a fresh hub.
func New(root, addr string) *Server {
	return &Server{Root: root, Addr: addr, CORS: true, Hub: NewHub()}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the HTTP handler: the event stream, the client script and
// the output tree.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	if s.CORS {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", "Cache-Control", "Last-Event-ID"},
			MaxAge:          12 * time.Hour,
		}))
	}

	r.GET(eventsPath, s.events)
	r.GET(clientPath, func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(clientJS))
	})
	r.NoRoute(s.serveFile)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == eventsPath {
			return
		}
		s.logger().Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) events(c *gin.Context) {
	id, ch, cancel := s.Hub.Subscribe()
	defer cancel()

	log := s.logger().With("client", id)
	log.Debug("browser connected")
	defer log.Debug("browser disconnected")

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("hello", id)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		}
	})
}

func (s *Server) serveFile(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	rel := path.Clean("/" + c.Request.URL.Path)
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(c.Request.URL.Path, "/") {
			c.Redirect(http.StatusMovedPermanently, c.Request.URL.Path+"/")
			return
		}
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "404 page not found")
		return
	}

	c.Header("Cache-Control", "no-cache")
	if strings.EqualFold(filepath.Ext(full), ".html") {
		doc, err := os.ReadFile(full)
		if err != nil {
			c.String(http.StatusInternalServerError, "reading %s", rel)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", injectClient(doc))
		return
	}
	c.File(full)
}

// Start binds the listener and serves in the background until ctx is
// cancelled. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr, err)
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.done = done
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger().Warn("dev server shutdown", "error", err)
		}
	}()
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("dev server stopped", "error", err)
		}
	}()

	s.logger().Info("dev server listening", "url", "http://"+ln.Addr().String(), "root", s.Root)
	return nil
}

// ListenAddr returns the bound address after Start.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Done is closed once the server has stopped serving. It is nil before
// Start.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
