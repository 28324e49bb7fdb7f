// Package catalog manages the shared reference data: hills, events and
// teams. Writes are capability gated rather than team scoped.
package catalog

import (
	"log/slog"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/service/roster"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Service implements the catalog operations.
type Service struct {
	db         *storage.DB
	partitions *roster.Provisioner
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithProvisioner shares a partition provisioner with the roster service.
func WithProvisioner(p *roster.Provisioner) Option {
	return func(s *Service) { s.partitions = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now for the upcoming/past split.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a catalog Service.
func New(db *storage.DB, opts ...Option) *Service {
	s := &Service{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.partitions == nil {
		s.partitions = roster.NewProvisioner(db)
	}
	return s
}
