// Package api serves the cropping tool on a loopback HTTP port: the browser
// page, a small JSON API over one crop.Session and a WebSocket state feed.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dixieflatline76/InstaRatio/pkg/crop"
	"github.com/dixieflatline76/InstaRatio/pkg/preset"
	"github.com/dixieflatline76/InstaRatio/util/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

//go:embed static/index.html
var static embed.FS

// Defaults for Config fields left at zero.
const (
	DefaultMaxUploadBytes  = 32 << 20
	DefaultUploadsPerSec   = 2
	DefaultUploadBurst     = 4
	DefaultMaxConns        = 64
	DefaultShutdownTimeout = 5 * time.Second
	writeWait              = 5 * time.Second
)

// Config configures a Server.
type Config struct {
	Registry       *preset.Registry
	Factory        crop.SurfaceFactory
	SessionOptions []crop.Option

	MaxUploadBytes int64
	UploadsPerSec  float64
	UploadBurst    int
	MaxConns       int
}

// Server is the local web tool.
type Server struct {
	session    *crop.Session
	router     chi.Router
	upgrader   websocket.Upgrader
	uploads    *rate.Limiter
	maxUpload  int64
	maxConns   int
	httpServer *http.Server

	// WebSocket management
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
}

// NewServer creates a server owning a fresh session.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		cfg.Registry = preset.Builtin()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.UploadsPerSec <= 0 {
		cfg.UploadsPerSec = DefaultUploadsPerSec
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = DefaultUploadBurst
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}

	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
		uploads:   rate.NewLimiter(rate.Limit(cfg.UploadsPerSec), cfg.UploadBurst),
		maxUpload: cfg.MaxUploadBytes,
		maxConns:  cfg.MaxConns,
		clients:   make(map[*websocket.Conn]bool),
	}

	opts := append([]crop.Option{crop.WithObserver(s.Broadcast)}, cfg.SessionOptions...)
	session, err := crop.NewSession(cfg.Registry, cfg.Factory, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.session = session
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/presets", s.handlePresets)
	r.Get("/state", s.handleState)
	r.Post("/image", s.handleUpload)
	r.Put("/preset", s.handleSelectPreset)
	r.Put("/crop", s.handleSetCrop)
	r.Post("/process", s.handleProcess)
	r.Get("/output", s.handleOutput)
	r.Get("/download", s.handleDownload)
	r.Get("/ws", s.handleWebSocket)
	s.router = r
}

// Session returns the session the server drives.
func (s *Server) Session() *crop.Session {
	return s.session
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, s.maxConns)
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Serving on http://%s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		s.closeClients()
		s.session.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Broadcast sends ev to every connected WebSocket client.
func (s *Server) Broadcast(ev crop.Event) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(ev); err != nil {
			log.Printf("Failed to broadcast to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		client.Close()
		delete(s.clients, client)
	}
}

// sameHost accepts WebSocket upgrades only from pages served by this host.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host
}
