// Package web provides the HTTP surface of the kiosk agent: a status page,
// JSON status, light control, distance readings, detection results and the
// camera live view.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/sweeney/kiosk-agent/internal/logic"
	"github.com/sweeney/kiosk-agent/internal/state"
)

// Core is the agent surface the handlers adapt.
type Core interface {
	Snapshot() state.Snapshot
	SetManualActuator(enabled bool, level int) (logic.ActuatorState, error)
	ClearManualOverride() (logic.ActuatorState, error)
	LatestDetection() (logic.DetectionResult, bool)
	DetectionHistory(limit int) []logic.DetectionResult
	TriggerDetection(ctx context.Context) (logic.DetectionResult, error)
	DistanceSample() logic.DistanceSample
	StreamFrame(ctx context.Context) ([]byte, error)
}

// DefaultHistoryLimit is the number of detections returned by the history
// endpoint when no limit is given.
const DefaultHistoryLimit = 50

// Server serves the HTTP surface.
type Server struct {
	httpServer *http.Server
	core       Core

	// quit is closed when the server shuts down. Long-lived handlers
	// (the live view) watch it, since Shutdown waits for them.
	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Server backed by core.
func New(addr string, core Core) *Server {
	s := &Server{core: core, quit: make(chan struct{})}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.httpServer.RegisterOnShutdown(s.stop)
	return s
}

func (s *Server) stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleStatus)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("POST /api/led", s.handleLED)
	mux.HandleFunc("POST /api/led/auto", s.handleLEDAuto)
	mux.HandleFunc("GET /api/distance", s.handleDistance)

	mux.HandleFunc("GET /api/face/detect", s.handleDetect)
	mux.HandleFunc("GET /api/face/latest", s.handleLatest)
	mux.HandleFunc("GET /api/face/history", s.handleHistory)

	mux.HandleFunc("GET /api/camera/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/camera/stream", s.handleStream)
	mux.HandleFunc("GET /api/camera/status", s.handleCameraStatus)
	return mux
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Open live-view streams are
// ended so they do not hold it up.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close stops the server immediately, dropping open connections.
func (s *Server) Close() error {
	s.stop()
	return s.httpServer.Close()
}
