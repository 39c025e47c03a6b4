package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raceforge/lane-derby-go/internal/probtable"
	"github.com/raceforge/lane-derby-go/internal/race"
	"github.com/raceforge/lane-derby-go/internal/replay"
)

// Server handles HTTP requests from the settlement layer and from clients
// verifying published races.
type Server struct {
	cfg       race.Config
	tables    *probtable.ShardSet // nil when no table is deployed
	replayer  *replay.Replayer
	logger    *log.Logger
	startTime time.Time
}

// NewServer creates the API server. tables may be nil; odds lookups then
// answer 503 until a table artifact is deployed.
func NewServer(cfg race.Config, tables *probtable.ShardSet) (*Server, error) {
	replayer, err := replay.New()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		tables:    tables,
		replayer:  replayer,
		logger:    log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		startTime: time.Now(),
	}, nil
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/simulate", s.handleSimulate)
		r.Post("/verify", s.handleVerify)
		r.Post("/odds", s.handleOdds)
		r.Get("/table", s.handleTableInfo)
	})

	return r
}

// writeJSON writes a JSON response with proper headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError writes a structured error response.
func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string, context map[string]any) {
	s.writeJSON(w, status, EngineError{
		Type:    errType,
		Message: message,
		Context: context,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"table_loaded":   s.tables != nil,
		"engine_version": EngineVersion,
	})
}
