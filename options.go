package skijump

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port            int
	databaseURL     string
	notifyURL       string
	redisURL        string
	logger          *slog.Logger
	version         string
	scorer          Scorer
	extraMigrations []fs.FS
	skipMigrations  bool
}

// WithPort overrides the TCP port from config (SKIJUMP_PORT).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides DATABASE_URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides NOTIFY_URL, the direct Postgres connection used
// for LISTEN/NOTIFY. LISTEN does not survive a transaction-mode pooler, so
// point this past PgBouncer when one sits in front of DATABASE_URL.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithRedisURL overrides REDIS_URL. A non-empty URL moves rate limiting
// into Redis.
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version reported by /health and in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithScorer replaces the built-in recommendation score.
func WithScorer(s Scorer) Option {
	return func(o *resolvedOptions) { o.scorer = s }
}

// WithExtraMigrations adds a migration filesystem applied after the
// embedded one. Filesystems run in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}

// WithoutMigrations skips the embedded migrations, for deployments that
// apply them out of band with `skijump migrate`.
func WithoutMigrations() Option {
	return func(o *resolvedOptions) { o.skipMigrations = true }
}
