package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/ctxutil"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/ratelimit"
	"github.com/kubikal7/ski-jumping-management/internal/service/accounts"
	"github.com/kubikal7/ski-jumping-management/internal/service/catalog"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/service/roster"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Server is the skijump HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Broker, TeamCache, the limiters, MCPServer and MetricsHandler may
// be nil to disable the feature.
type ServerConfig struct {
	DB       *storage.DB
	JWTMgr   *auth.JWTManager
	Accounts *accounts.Service
	Catalog  *catalog.Service
	Roster   *roster.Service
	Engine   *recommend.Engine
	Logger   *slog.Logger

	Broker         *Broker
	TeamCache      *authz.TeamCache
	LoginLimiter   ratelimit.Limiter // Keyed by client IP.
	WriteLimiter   ratelimit.Limiter // Keyed by user.
	MCPServer      *mcpserver.MCPServer
	MetricsHandler http.Handler

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Accounts:            cfg.Accounts,
		Catalog:             cfg.Catalog,
		Roster:              cfg.Roster,
		Engine:              cfg.Engine,
		Broker:              cfg.Broker,
		TeamCache:           cfg.TeamCache,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}
	loginRL := ratelimit.Middleware(cfg.LoginLimiter,
		ratelimit.PrefixKey("login", ratelimit.IPKeyFunc), reqIDFunc, cfg.Logger)
	writeRL := ratelimit.Middleware(cfg.WriteLimiter,
		ratelimit.PrefixKey("write", userKeyFunc), reqIDFunc, cfg.Logger)

	// write wraps a mutating handler: per-user rate limit, then actor lookup.
	// Capability and team-scope checks happen in the services.
	write := func(fn func(http.ResponseWriter, *http.Request, authz.Actor)) http.Handler {
		return writeRL(h.withActor(fn))
	}
	injuryReaders := requireCapability(model.CapInjuryManager)
	trainers := requireCapability(model.CapTrainer)
	adminOnly := requireCapability()

	mux := http.NewServeMux()

	mux.Handle("POST /auth/login", loginRL(http.HandlerFunc(h.HandleLogin)))
	mux.HandleFunc("GET /health", h.HandleHealth)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Users and membership.
	mux.HandleFunc("GET /v1/users", h.HandleListUsers)
	mux.HandleFunc("GET /v1/users/me", h.HandleMe)
	mux.HandleFunc("GET /v1/users/{id}", h.HandleGetUser)
	mux.Handle("POST /v1/users", write(h.HandleCreateUser))
	mux.Handle("PUT /v1/users/{id}", write(h.HandleUpdateUser))
	mux.Handle("DELETE /v1/users/{id}", write(h.HandleDeleteUser))
	mux.Handle("PUT /v1/users/{id}/password", write(h.HandleResetPassword))
	mux.Handle("PUT /v1/users/me/password", writeRL(http.HandlerFunc(h.HandleChangeOwnPassword)))
	mux.Handle("POST /v1/users/{user_id}/teams/{team_id}", write(h.HandleAddMember))
	mux.Handle("DELETE /v1/users/{user_id}/teams/{team_id}", write(h.HandleRemoveMember))

	// Teams.
	mux.HandleFunc("GET /v1/teams", h.HandleListTeams)
	mux.HandleFunc("GET /v1/teams/{id}", h.HandleGetTeam)
	mux.HandleFunc("GET /v1/teams/{id}/athletes", h.HandleTeamAthletes)
	mux.Handle("POST /v1/teams", write(h.HandleCreateTeam))
	mux.Handle("PUT /v1/teams/{id}", write(h.HandleUpdateTeam))
	mux.Handle("DELETE /v1/teams/{id}", write(h.HandleDeleteTeam))

	// Hills.
	mux.HandleFunc("GET /v1/hills", h.HandleListHills)
	mux.HandleFunc("GET /v1/hills/{id}", h.HandleGetHill)
	mux.HandleFunc("GET /v1/hills/{id}/has-events", h.HandleHillHasEvents)
	mux.Handle("POST /v1/hills", write(h.HandleCreateHill))
	mux.Handle("PUT /v1/hills/{id}", write(h.HandleUpdateHill))
	mux.Handle("DELETE /v1/hills/{id}", write(h.HandleDeleteHill))

	// Events and participants.
	mux.HandleFunc("GET /v1/events", h.HandleListEvents)
	mux.HandleFunc("GET /v1/events/upcoming", h.HandleUpcomingEvents)
	mux.HandleFunc("GET /v1/events/past", h.HandlePastEvents)
	mux.HandleFunc("GET /v1/events/{id}", h.HandleGetEvent)
	mux.HandleFunc("GET /v1/events/{id}/participants", h.HandleEventParticipants)
	mux.Handle("POST /v1/events", write(h.HandleCreateEvent))
	mux.Handle("PUT /v1/events/{id}", write(h.HandleUpdateEvent))
	mux.Handle("DELETE /v1/events/{id}", write(h.HandleDeleteEvent))
	mux.HandleFunc("GET /v1/athletes/{id}/participations", h.HandleAthleteParticipations)
	mux.Handle("POST /v1/participants", write(h.HandleRegisterParticipant))
	mux.Handle("DELETE /v1/participants/{id}", write(h.HandleWithdrawParticipant))

	mux.Handle("POST /v1/recommendations", trainers(http.HandlerFunc(h.HandleRecommend)))

	// Results. The stream is long-lived and not rate limited.
	mux.HandleFunc("GET /v1/results", h.HandleListResults)
	mux.HandleFunc("GET /v1/results/stream", h.HandleResultStream)
	mux.HandleFunc("GET /v1/results/{id}", h.HandleGetResult)
	mux.Handle("POST /v1/results", write(h.HandleRecordResult))
	mux.Handle("PUT /v1/results/{id}", write(h.HandleCorrectResult))
	mux.Handle("DELETE /v1/results/{id}", write(h.HandleDeleteResult))

	// Injuries are visible to injury managers only.
	mux.Handle("GET /v1/injuries", injuryReaders(http.HandlerFunc(h.HandleListInjuries)))
	mux.Handle("GET /v1/injuries/{id}", injuryReaders(http.HandlerFunc(h.HandleGetInjury)))
	mux.Handle("POST /v1/injuries", write(h.HandleRecordInjury))
	mux.Handle("PUT /v1/injuries/{id}", write(h.HandleEditInjury))
	mux.Handle("DELETE /v1/injuries/{id}", write(h.HandleDeleteInjury))

	mux.Handle("GET /v1/admin/partitions", adminOnly(http.HandlerFunc(h.HandleListPartitions)))

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", trainers(mcpserver.NewStreamableHTTPServer(cfg.MCPServer)))
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// userKeyFunc keys write limits by user. Administrators are exempt.
func userKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil || claims.Capabilities.Has(model.CapAdmin) {
		return ""
	}
	return claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
