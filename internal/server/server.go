package server

import (
	"log/slog"
	"net/http"

	"sales-dashboard/internal/handlers"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
	pages       *handlers.PageHandlers
	protect     func(http.Handler) http.Handler
}

// Handlers groups the route handlers. RequireSession wraps every route that
// needs a signed-in user.
type Handlers struct {
	API            *handlers.APIHandlers
	SSE            *handlers.SSEHandlers
	Pages          *handlers.PageHandlers
	RequireSession func(http.Handler) http.Handler
}

func NewServer(h Handlers, logger *slog.Logger) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: h.API,
		sseHandlers: h.SSE,
		pages:       h.Pages,
		protect:     h.RequireSession,
	}
	if s.protect == nil {
		s.protect = func(next http.Handler) http.Handler { return next }
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Public routes
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /login", s.pages.HandleLogin)
	s.mux.HandleFunc("POST /session", s.pages.HandleSession)
	s.mux.HandleFunc("POST /session/logout", s.pages.HandleLogout)

	// Pages
	s.handle("GET /{$}", s.pages.HandleDashboard)
	s.handle("GET /forecast", s.pages.HandleForecast)
	s.handle("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.handle("GET /api/filters/options", s.apiHandlers.HandleOptions)
	s.handle("GET /api/summary", s.apiHandlers.HandleSummary)
	s.handle("GET /api/forecast", s.apiHandlers.HandleForecast)
	s.handle("GET /api/dimensions/unique-values", s.apiHandlers.HandleUniqueValues)

	// Datastar SSE endpoints
	s.handle("GET /sse/raw", s.sseHandlers.HandleRaw)
	s.handle("GET /sse/forecast", s.sseHandlers.HandleForecastStream)
	s.handle("POST /sse/forecast/dimension", s.sseHandlers.HandleDimension)
	s.handle("POST /sse/forecast/value", s.sseHandlers.HandleValue)
	s.handle("POST /sse/forecast/query", s.sseHandlers.HandleQuery)
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.protect(fn))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
