// Package worker runs background jobs on three priority queues. Interactive
// work always preempts queued actions, and actions preempt indexing; a
// worker only blocks on the full queue set after draining the higher ones.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/fault"
)

// Queue identifies a priority class. Lower value drains first.
type Queue int

const (
	QueueInteractive Queue = iota
	QueueActions
	QueueIndexing

	queueCount
)

func (q Queue) String() string {
	switch q {
	case QueueInteractive:
		return "interactive"
	case QueueActions:
		return "actions"
	case QueueIndexing:
		return "indexing"
	}
	return "unknown"
}

// Job is one unit of background work. Fn must honor ctx cancellation; the
// pool enforces the deadline through the context it passes in.
type Job struct {
	ID       string
	TenantID string
	UserID   string
	Name     string
	Queue    Queue
	Deadline time.Time
	Params   map[string]any
	Fn       func(ctx context.Context) error
	// OnDone, when set, is called exactly once after the job reaches its
	// final outcome: nil on success, the last error after exhausted
	// retries or a terminal failure.
	OnDone func(err error)
}

// Options tunes a Pool.
type Options struct {
	Workers        int
	QueueDepth     int
	MaxRetries     int
	RetryDelays    []time.Duration
	DefaultTimeout time.Duration
}

// Pool drains the priority queues with a fixed worker set.
type Pool struct {
	queues [queueCount]chan Job
	audits *audit.Store
	log    *zap.Logger
	opts   Options
	group  *errgroup.Group
}

// NewPool creates a stopped Pool. Call Start to begin draining.
func NewPool(audits *audit.Store, log *zap.Logger, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{audits: audits, log: log, opts: opts}
	for i := range p.queues {
		p.queues[i] = make(chan Job, opts.QueueDepth)
	}
	return p
}

// Start launches the workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			p.work(gctx)
			return nil
		})
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	if p.group != nil {
		p.group.Wait()
	}
}

// Enqueue places a job on its queue without blocking. A full queue is
// reported as unavailable so callers can shed load or retry.
func (p *Pool) Enqueue(job Job) error {
	if job.Fn == nil {
		return fault.New(fault.KindValidation, "job requires a function")
	}
	if job.Name == "" {
		return fault.New(fault.KindValidation, "job requires a name")
	}
	if job.Queue < QueueInteractive || job.Queue >= queueCount {
		return fault.Newf(fault.KindValidation, "unknown queue %d", job.Queue)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	select {
	case p.queues[job.Queue] <- job:
		return nil
	default:
		return fault.Newf(fault.KindUnavailable, "queue %s is full", job.Queue)
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		// Drain interactive work before looking lower.
		select {
		case job := <-p.queues[QueueInteractive]:
			p.process(ctx, job)
			continue
		default:
		}
		select {
		case job := <-p.queues[QueueInteractive]:
			p.process(ctx, job)
			continue
		case job := <-p.queues[QueueActions]:
			p.process(ctx, job)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case job := <-p.queues[QueueInteractive]:
			p.process(ctx, job)
		case job := <-p.queues[QueueActions]:
			p.process(ctx, job)
		case job := <-p.queues[QueueIndexing]:
			p.process(ctx, job)
		}
	}
}

// process runs one job to completion, retrying transient failures with the
// configured backoff. The deadline is wall clock: waiting out a backoff
// delay spends the same budget as running.
func (p *Pool) process(ctx context.Context, job Job) {
	deadline := job.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(p.opts.DefaultTimeout)
	}
	jctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		err = job.Fn(jctx)
		if err == nil {
			p.log.Debug("job completed",
				zap.String("job_id", job.ID),
				zap.String("job", job.Name),
				zap.String("queue", job.Queue.String()),
				zap.Int("attempts", attempt+1),
				zap.Duration("elapsed", time.Since(start)),
			)
			if job.OnDone != nil {
				job.OnDone(nil)
			}
			return
		}
		if attempt >= p.opts.MaxRetries || !retryEligible(err) {
			break
		}

		delay := p.opts.RetryDelays[min(attempt, len(p.opts.RetryDelays)-1)]
		p.log.Warn("job failed, retrying",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-jctx.Done():
			err = fault.Wrap(fault.KindUnavailable, "job deadline expired during backoff", jctx.Err())
			p.deadLetter(ctx, job, err, attempt+1, time.Since(start))
			if job.OnDone != nil {
				job.OnDone(err)
			}
			return
		case <-time.After(delay):
		}
	}

	p.deadLetter(ctx, job, err, p.opts.MaxRetries+1, time.Since(start))
	if job.OnDone != nil {
		job.OnDone(err)
	}
}

// retryEligible mirrors the service's error classification: validation and
// permission failures can never succeed later, explicitly transient faults
// can, and errors nothing classified are given the benefit of the doubt.
// Context expiry is always terminal.
func retryEligible(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if fault.Retryable(err) {
		return true
	}
	var fe *fault.Error
	return !errors.As(err, &fe)
}

// deadLetter records a job's final failure as a critical audit entry.
// Without it a dropped background job would be invisible.
func (p *Pool) deadLetter(ctx context.Context, job Job, err error, attempts int, elapsed time.Duration) {
	p.log.Error("job exhausted, dead-lettering",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.String("queue", job.Queue.String()),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	// Audit writes must survive the job context being expired.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, auditErr := p.audits.Create(actx, audit.Record{
		TenantID:    job.TenantID,
		UserID:      job.UserID,
		ActionType:  audit.ActionToolExecution,
		ToolName:    job.Name,
		InputParams: job.Params,
		OutputResult: map[string]any{
			"queue":    job.Queue.String(),
			"attempts": attempts,
		},
		Status:          audit.StatusFailed,
		ErrorMessage:    err.Error(),
		Severity:        audit.SeverityCritical,
		ExecutionTimeMS: elapsed.Milliseconds(),
	})
	if auditErr != nil {
		p.log.Error("dead-letter audit write failed",
			zap.String("job_id", job.ID),
			zap.Error(auditErr),
		)
	}
}
