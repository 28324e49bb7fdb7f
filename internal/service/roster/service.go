// Package roster holds the team-scoped write paths: event participants,
// results, injuries and team membership.
//
// Every mutation passes through authz.Check before touching storage, and
// writes into season-partitioned tables provision their partition first.
// Both the HTTP API and the MCP server delegate here.
package roster

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/internal/telemetry"
)

// PartitionManager provisions season partitions. *storage.DB implements it.
type PartitionManager interface {
	EnsurePartition(ctx context.Context, table, seasonKey string) error
}

// Provisioner ensures season partitions exist before a write and counts the
// calls.
type Provisioner struct {
	pm       PartitionManager
	ensured  metric.Int64Counter
	failures metric.Int64Counter
}

// NewProvisioner wraps pm.
func NewProvisioner(pm PartitionManager) *Provisioner {
	meter := telemetry.Meter("skijump/roster")
	ensured, _ := meter.Int64Counter("skijump.partition.ensure",
		metric.WithDescription("Season partition checks before writes"),
	)
	failures, _ := meter.Int64Counter("skijump.partition.ensure.failures",
		metric.WithDescription("Season partition checks that failed"),
	)
	return &Provisioner{pm: pm, ensured: ensured, failures: failures}
}

// Ensure provisions seasonKey in each table, in order. The first failure
// aborts and is reported as model.ErrStorageFault.
func (p *Provisioner) Ensure(ctx context.Context, seasonKey string, tables ...string) error {
	for _, table := range tables {
		attrs := metric.WithAttributes(attribute.String("skijump.table", table))
		p.ensured.Add(ctx, 1, attrs)
		if err := p.pm.EnsurePartition(ctx, table, seasonKey); err != nil {
			p.failures.Add(ctx, 1, attrs)
			return fmt.Errorf("%w: provision %s partition for season %s: %w", model.ErrStorageFault, table, seasonKey, err)
		}
	}
	return nil
}

// Service implements the roster operations.
type Service struct {
	db         *storage.DB
	partitions *Provisioner
	teams      *authz.TeamCache
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPartitionManager replaces db as the partition provisioner.
func WithPartitionManager(pm PartitionManager) Option {
	return func(s *Service) { s.partitions = NewProvisioner(pm) }
}

// WithTeamCache sets the cache invalidated on membership changes.
func WithTeamCache(c *authz.TeamCache) Option {
	return func(s *Service) { s.teams = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a roster Service.
func New(db *storage.DB, opts ...Option) *Service {
	s := &Service{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.partitions == nil {
		s.partitions = NewProvisioner(db)
	}
	return s
}

// Partitions exposes the provisioner so other services share one.
func (s *Service) Partitions() *Provisioner { return s.partitions }

// loadAthlete fetches a user and requires the ATHLETE capability.
func (s *Service) loadAthlete(ctx context.Context, id int64, action string) (model.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return model.User{}, storage.Classify(err, fmt.Sprintf("user %d", id))
	}
	if !u.IsAthlete() {
		return model.User{}, fmt.Errorf("%w: user must have capability ATHLETE to %s", model.ErrInvalidRequest, action)
	}
	return u, nil
}
