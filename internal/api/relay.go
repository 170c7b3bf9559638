package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/ride-relay/internal/config"
	"github.com/npezzotti/ride-relay/internal/server"
)

type RelayApp struct {
	log       *log.Logger
	srv       *http.Server
	relay     *server.Relay
	cfg       *config.Config
	newConnId ConnIdGenerator
	upgrader  websocket.Upgrader
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, relay *server.Relay, cfg *config.Config) (*RelayApp, error) {
	newConnId, err := NewConnIdGenerator(cfg.ConnIdFormat)
	if err != nil {
		return nil, err
	}

	s := &RelayApp{
		log:       logger,
		relay:     relay,
		cfg:       cfg,
		newConnId: newConnId,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s, nil
}

// checkOrigin admits requests without an Origin header (native mobile
// clients) and browser requests from an allowed origin. A "*" entry admits
// every origin.
func (s *RelayApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.cfg.AllowedOrigins, "*") ||
		slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *RelayApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
