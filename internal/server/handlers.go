package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/ctxutil"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/service/accounts"
	"github.com/kubikal7/ski-jumping-management/internal/service/catalog"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/service/roster"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	db        *storage.DB
	accounts  *accounts.Service
	catalog   *catalog.Service
	roster    *roster.Service
	engine    *recommend.Engine
	broker    *Broker
	teamCache *authz.TeamCache
	logger    *slog.Logger
	version   string
	maxBody   int64
	startedAt time.Time
	now       func() time.Time
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Broker and TeamCache may be nil.
type HandlersDeps struct {
	DB                  *storage.DB
	Accounts            *accounts.Service
	Catalog             *catalog.Service
	Roster              *roster.Service
	Engine              *recommend.Engine
	Broker              *Broker
	TeamCache           *authz.TeamCache
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		db:        d.DB,
		accounts:  d.Accounts,
		catalog:   d.Catalog,
		roster:    d.Roster,
		engine:    d.Engine,
		broker:    d.Broker,
		teamCache: d.TeamCache,
		logger:    d.Logger,
		version:   d.Version,
		maxBody:   maxBody,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// actor resolves the caller's capabilities and current team memberships.
func (h *Handlers) actor(r *http.Request) (authz.Actor, error) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		return authz.Actor{}, fmt.Errorf("%w: no credentials", model.ErrUnauthenticated)
	}
	actor, err := authz.LoadActor(r.Context(), h.db, h.teamCache, claims.UserID(), claims.Capabilities)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("%w: %w", model.ErrStorageFault, err)
	}
	return actor, nil
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

// decode reads and validates a request body, writing the error response
// itself. It reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(w, r, target, h.maxBody); err != nil {
		handleDecodeError(w, r, err)
		return false
	}
	return true
}

// withActor adapts a handler that needs the resolved actor.
func (h *Handlers) withActor(fn func(http.ResponseWriter, *http.Request, authz.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.actor(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		fn(w, r, actor)
	}
}

// HandleLogin handles POST /auth/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleHealth handles GET /health. Postgres and the current season's
// partitions are probed in parallel.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Postgres:   "connected",
		Partitions: "ready",
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
	}
	httpStatus := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	key := season.Key(h.now().UTC())

	var pgErr error
	var missing bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pgErr = h.db.Ping(gctx)
		return nil
	})
	g.Go(func() error {
		for _, table := range []string{storage.TableParticipants, storage.TableResults} {
			ok, err := h.db.PartitionExists(gctx, table, key)
			if err != nil || !ok {
				missing = true
				return nil
			}
		}
		return nil
	})
	_ = g.Wait()

	if pgErr != nil {
		resp.Postgres = "disconnected"
		resp.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	if missing {
		resp.Partitions = "missing"
		if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}
	if h.broker != nil {
		resp.SSEBroker = "stopped"
		if h.broker.Listening() {
			resp.SSEBroker = "running"
		}
	}
	writeJSON(w, r, httpStatus, resp)
}

// HandleListPartitions handles GET /v1/admin/partitions?table=.
func (h *Handlers) HandleListPartitions(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = storage.TableResults
	}
	if table != storage.TableResults && table != storage.TableParticipants {
		h.fail(w, r, fmt.Errorf("%w: table must be %s or %s", model.ErrInvalidRequest, storage.TableResults, storage.TableParticipants))
		return
	}
	keys, err := h.db.ListPartitions(r.Context(), table)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", model.ErrStorageFault, err))
		return
	}
	out := make([]model.PartitionInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.PartitionInfo{Table: table, Season: k, Partition: storage.PartitionName(table, k)})
	}
	writeJSON(w, r, http.StatusOK, out)
}
