// Package app builds the service graph from configuration. Both binaries
// share it so the API and the worker always agree on backends.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/classes"
	"qrattend/internal/clock"
	"qrattend/internal/config"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/scan"
	"qrattend/internal/store"
	"qrattend/internal/token"
	"qrattend/internal/worker"
)

// Services is the wired application.
type Services struct {
	DB        *store.DB
	Redis     *store.Redis
	Queue     queue.Queue
	Metrics   *metrics.Metrics
	Tokens    *token.Manager
	Registry  *attendance.Registry
	Lifecycle *classes.Lifecycle
	Scans     *scan.Coordinator
	Directory classes.Directory

	clock clock.Clock
	log   zerolog.Logger
	cfg   config.App
}

// Build opens the configured backends. reg receives the metrics; pass nil to
// skip registration.
func Build(ctx context.Context, cfg config.App, reg prometheus.Registerer, log zerolog.Logger) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Services{clock: clock.System{}, log: log, cfg: cfg, Metrics: metrics.New(reg)}

	needDB := cfg.StoreBackend == "postgres" || cfg.TokenBackend == "postgres"
	needRedis := cfg.TokenBackend == "redis" || cfg.QueueBackend == "redis"

	if needDB {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.DB = db
		if cfg.MigrateOnStart {
			if err := store.Migrate(ctx, db.Client); err != nil {
				s.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
	}
	if needRedis {
		s.Redis = store.NewRedis(cfg.RedisAddr)
		if !s.Redis.Healthy(ctx) {
			log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
		}
	}

	var tokenStore token.Store
	switch cfg.TokenBackend {
	case "redis":
		tokenStore = token.NewRedisStore(s.Redis.Client, "")
	case "postgres":
		tokenStore = token.NewPostgresStore(s.DB.Client)
	default:
		tokenStore = token.NewMemoryStore()
	}
	s.Tokens = token.NewManager(tokenStore, s.clock, cfg.TokenTTL, log)

	if cfg.QueueBackend == "redis" {
		s.Queue = queue.NewRedisQueue(s.Redis.Client, cfg.QueueKey)
	} else {
		s.Queue = queue.NewInMemory(64)
	}

	var (
		repo     attendance.Repository
		sessions classes.Store
		settings classes.SettingsStore
	)
	if cfg.StoreBackend == "postgres" {
		repo = attendance.NewPostgresRepository(s.DB.Client)
		sessions = classes.NewPostgresStore(s.DB.Client)
		settings = classes.NewPostgresSettings(s.DB.Client)
		s.Directory = classes.NewPostgresDirectory(s.DB.Client)
	} else {
		repo = attendance.NewMemoryRepository()
		sessions = classes.NewMemoryStore()
		settings = classes.NewMemorySettings()
		dir := classes.NewMemoryDirectory()
		if cfg.SeedFile != "" {
			if err := seedDirectory(cfg.SeedFile, dir, log); err != nil {
				s.Close()
				return nil, err
			}
		}
		s.Directory = dir
	}

	s.Registry = attendance.NewRegistry(repo, s.clock, log)
	s.Lifecycle = classes.NewLifecycle(classes.Deps{
		Classes:   sessions,
		Directory: s.Directory,
		Settings:  settings,
		Registry:  s.Registry,
		Queue:     s.Queue,
		Clock:     s.clock,
		Metrics:   s.Metrics,
		Log:       log,
	})
	s.Scans = scan.NewCoordinator(s.Lifecycle, s.Registry, s.Tokens, scan.Options{
		BaseURL: cfg.PublicBaseURL,
		Clock:   s.clock,
		Metrics: s.Metrics,
		Log:     log,
	})

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("tokens", cfg.TokenBackend).
		Str("queue", cfg.QueueBackend).
		Msg("services wired")
	return s, nil
}

func seedDirectory(path string, dir *classes.MemoryDirectory, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	n, err := classes.LoadSeed(f, dir)
	if err != nil {
		return err
	}
	log.Info().Int("students", n).Str("file", path).Msg("directory seeded")
	return nil
}

// Worker returns the background runner over these services.
func (s *Services) Worker() *worker.Runner {
	return worker.New(s.Lifecycle, s.Tokens, s.Queue, s.clock, s.Metrics, s.log, worker.Config{
		PurgeInterval: s.cfg.TokenPurgeInterval,
	})
}

// InProcessWorker reports whether the queue lives in this process, in which
// case the API must run the worker itself.
func (s *Services) InProcessWorker() bool {
	_, ok := s.Queue.(*queue.InMemory)
	return ok
}

// Healthy reports per-backend health for the configured backends only.
func (s *Services) Healthy(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	if s.DB != nil {
		out["db"] = s.DB.Healthy(ctx)
	}
	if s.Redis != nil {
		out["redis"] = s.Redis.Healthy(ctx)
	}
	return out
}

// Close releases the connections.
func (s *Services) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close redis")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close db")
		}
	}
}
