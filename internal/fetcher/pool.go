// Package fetcher contains the bulk download engine: a fixed pool of
// workers pulling CIKs from a shared queue, throttled by one
// process-wide rate limiter, retrying transient failures with capped
// exponential backoff, and recording every terminal outcome in the run
// manifest.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/config"
	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/manifest"
	"github.com/user/edgar-fetcher/internal/monitoring"
	"github.com/user/edgar-fetcher/internal/ratelimit"
	"github.com/user/edgar-fetcher/internal/writer"
)

// Pool coordinates the fetch workers for one run. All shared state
// (queue, limiter, manifest) serializes its own access; workers never
// touch manifest internals directly.
type Pool struct {
	workers     int
	maxAttempts int
	client      *Client
	limiter     *ratelimit.Limiter
	store       *manifest.Store
	writer      *writer.Writer
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	backoff     backoffPolicy

	fatalOnce sync.Once
	fatalErr  error
}

func NewPool(
	cfg *config.Config,
	client *Client,
	limiter *ratelimit.Limiter,
	store *manifest.Store,
	w *writer.Writer,
	m *monitoring.Metrics,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		client:      client,
		limiter:     limiter,
		store:       store,
		writer:      w,
		metrics:     m,
		logger:      logger,
		backoff: backoffPolicy{
			base:  cfg.BackoffBase(),
			max:   cfg.BackoffMax(),
			floor: limiter.Interval(),
		},
	}
}

// Run processes every company that does not already have a terminal
// outcome in the manifest. It returns nil when the queue drains, the
// context error when cancelled, and a manifest persistence error when
// progress can no longer be durably recorded (fatal).
//
// Cancellation stops the producer, lets in-flight attempts finish or
// time out, and leaves unfinished CIKs unrecorded so a later run
// resumes them.
func (p *Pool) Run(ctx context.Context, companies []domain.Company) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan domain.Company, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(runCtx, cancel, id, tasks)
		}(i)
	}

	p.produce(runCtx, cancel, companies, tasks)
	wg.Wait()

	if p.fatalErr != nil {
		return p.fatalErr
	}
	return ctx.Err()
}

// produce filters the identifier list against the manifest and feeds
// the remainder to the workers.
func (p *Pool) produce(ctx context.Context, cancel context.CancelFunc, companies []domain.Company, tasks chan<- domain.Company) {
	defer close(tasks)
	for _, c := range companies {
		if p.store.IsDone(c.CIK) {
			if err := p.store.RecordSkipped(c.CIK); err != nil {
				p.fail(err)
				cancel()
				return
			}
			p.metrics.IncFetch("skipped")
			continue
		}
		// An artifact without a manifest entry means a previous pass
		// died between writing the file and recording it. Adopt it.
		if p.writer.Exists(c.CIK) {
			out := domain.Outcome{
				CIK:       c.CIK,
				Status:    domain.StatusCompleted,
				FetchedAt: time.Now().UTC(),
				FilePath:  p.writer.ArtifactPath(c.CIK),
				Company:   c.Name,
			}
			if err := p.store.RecordSuccess(out); err != nil {
				p.fail(err)
				cancel()
				return
			}
			p.metrics.IncFetch("skipped")
			continue
		}
		select {
		case tasks <- c:
			p.metrics.QueueDepth.Inc()
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, cancel context.CancelFunc, id int, tasks <-chan domain.Company) {
	log := p.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-tasks:
			if !ok {
				return
			}
			p.metrics.QueueDepth.Dec()
			if err := p.process(ctx, log, c); err != nil {
				p.fail(err)
				cancel()
				return
			}
		}
	}
}

// process drives one CIK through its task state machine until a
// terminal outcome or cancellation. Attempts for the same CIK are
// never concurrent: the task is owned by exactly this worker.
func (p *Pool) process(ctx context.Context, log *zap.Logger, c domain.Company) error {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.limiter.Acquire(ctx); err != nil {
			// Cancelled while waiting for a permit; leave the CIK
			// unrecorded so the next run picks it up.
			return nil
		}

		p.metrics.InFlight.Inc()
		start := time.Now()
		payload, err := p.client.FetchSubmissions(ctx, c.CIK)
		p.metrics.RequestDuration.Observe(time.Since(start).Seconds())
		p.metrics.InFlight.Dec()

		if err == nil {
			summary, werr := p.writer.Write(c.CIK, payload)
			if werr == nil {
				name := summary.Name
				if name == "" {
					name = c.Name
				}
				out := domain.Outcome{
					CIK:       c.CIK,
					Status:    domain.StatusCompleted,
					Attempts:  attempt,
					FetchedAt: time.Now().UTC(),
					FilePath:  p.writer.ArtifactPath(c.CIK),
					Company:   name,
				}
				if rerr := p.store.RecordSuccess(out); rerr != nil {
					return rerr
				}
				p.metrics.IncFetch("success")
				log.Info("fetched submissions",
					zap.String("cik", c.CIK),
					zap.String("company", name),
					zap.Int("attempt", attempt))
				return nil
			}
			if errors.Is(werr, writer.ErrDuplicateArtifact) {
				// The producer adopts orphan artifacts, so reaching
				// here means two tasks for one CIK. Record and move on
				// rather than poison the batch.
				log.Error("duplicate artifact write rejected", zap.String("cik", c.CIK))
				return p.recordFailure(log, c, domain.ReasonDuplicateArtifact, attempt)
			}
			// Storage trouble is transient, distinct from HTTP errors,
			// and shares the same attempt budget.
			log.Warn("artifact write failed",
				zap.String("cik", c.CIK),
				zap.Int("attempt", attempt),
				zap.Error(werr))
			err = werr
		} else if classify(err) == classTerminal {
			log.Warn("terminal response",
				zap.String("cik", c.CIK),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return p.recordFailure(log, c, failureReason(err), attempt)
		}

		if ctx.Err() != nil {
			return nil
		}
		if attempt == p.maxAttempts {
			log.Warn("retries exhausted",
				zap.String("cik", c.CIK),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return p.recordFailure(log, c, domain.ReasonAttemptsExhausted, attempt)
		}

		p.metrics.RetriesTotal.Inc()
		delay := p.backoff.delay(attempt)
		log.Info("retrying after backoff",
			zap.String("cik", c.CIK),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
	return nil
}

func (p *Pool) recordFailure(log *zap.Logger, c domain.Company, reason string, attempts int) error {
	out := domain.Outcome{
		CIK:      c.CIK,
		Status:   domain.StatusFailed,
		Reason:   reason,
		Attempts: attempts,
	}
	if err := p.store.RecordFailure(out); err != nil {
		return err
	}
	p.metrics.IncFetch("terminal_failure")
	log.Info("recorded terminal failure",
		zap.String("cik", c.CIK),
		zap.String("reason", reason))
	return nil
}

func (p *Pool) fail(err error) {
	p.fatalOnce.Do(func() {
		p.fatalErr = err
		p.logger.Error("aborting run", zap.Error(err))
	})
}
