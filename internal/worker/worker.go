// Package worker runs the background jobs: queued sweep retries and the
// periodic purge of expired scan tokens.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"qrattend/internal/classes"
	"qrattend/internal/clock"
	"qrattend/internal/errs"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

const (
	DefaultMaxAttempts  = 5
	DefaultRetryBackoff = 30 * time.Second
)

// Sweeper reruns the absentee sweep under the class settings.
// *classes.Lifecycle satisfies it.
type Sweeper interface {
	RetrySweep(ctx context.Context, classID string) (classes.SweepResult, error)
}

// Purger drops expired tokens. *token.Manager satisfies it.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Config tunes a Runner. Zero values take the defaults.
type Config struct {
	PurgeInterval time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

// Runner consumes the job queue and runs the purge ticker.
type Runner struct {
	sweeper Sweeper
	purger  Purger
	queue   queue.Queue
	clock   clock.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
	cfg     Config
}

func New(sweeper Sweeper, purger Purger, q queue.Queue, clk clock.Clock, m *metrics.Metrics, log zerolog.Logger, cfg Config) *Runner {
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Runner{sweeper: sweeper, purger: purger, queue: q, clock: clk, metrics: m, log: log.With().Str("component", "worker").Logger(), cfg: cfg}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	messages, err := r.queue.Consume(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(r.cfg.PurgeInterval)
	defer ticker.Stop()

	r.log.Info().Dur("purge_interval", r.cfg.PurgeInterval).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("worker stopped")
			return nil
		case <-ticker.C:
			r.PurgeOnce(ctx)
		case msg, ok := <-messages:
			if !ok {
				r.log.Info().Msg("queue closed, worker stopped")
				return nil
			}
			r.Handle(ctx, msg)
		}
	}
}

// PurgeOnce removes expired tokens and records how many went.
func (r *Runner) PurgeOnce(ctx context.Context) {
	n, err := r.purger.Purge(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("token purge failed")
		return
	}
	r.metrics.Purged(n)
	if n > 0 {
		r.log.Debug().Int64("purged", n).Msg("expired tokens purged")
	}
}

// Handle processes one queue message.
func (r *Runner) Handle(ctx context.Context, msg queue.Message) {
	switch msg.Type {
	case queue.TypeSweepRetry:
		r.retrySweep(ctx, msg)
	default:
		r.log.Warn().Str("type", msg.Type).Msg("unknown message type dropped")
	}
}

func (r *Runner) retrySweep(ctx context.Context, msg queue.Message) {
	var job queue.SweepRetry
	if err := msg.Decode(&job); err != nil || job.ClassID == "" {
		r.log.Error().Err(err).Msg("bad sweep.retry message dropped")
		return
	}
	log := r.log.With().Str("class_id", job.ClassID).Int("attempt", job.Attempt).Logger()

	res, err := r.sweeper.RetrySweep(ctx, job.ClassID)
	if err == nil && res.Failed == 0 {
		log.Info().Int("swept", res.Swept).Int("skipped", res.Skipped).Msg("sweep retry done")
		return
	}
	if err != nil {
		// Typed errors (class gone, reopened, never started) will not heal.
		if errs.KindOf(err) != nil {
			log.Warn().Err(err).Msg("sweep retry dropped")
			return
		}
		log.Warn().Err(err).Msg("sweep retry failed")
	}
	if job.Attempt >= r.cfg.MaxAttempts {
		log.Error().Msg("sweep retry attempts exhausted")
		return
	}

	go r.requeue(ctx, job)
}

// requeue republishes job after a linear backoff.
func (r *Runner) requeue(ctx context.Context, job queue.SweepRetry) {
	delay := time.Duration(job.Attempt) * r.cfg.RetryBackoff
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}
	job.Attempt++
	job.QueuedAt = r.clock.Now()
	next, err := queue.NewMessage(queue.TypeSweepRetry, job)
	if err == nil {
		err = r.queue.Publish(ctx, next)
	}
	if err != nil {
		r.log.Error().Err(err).Str("class_id", job.ClassID).Msg("requeue sweep retry failed")
		return
	}
	r.metrics.SweepRetryQueued()
}
