// Package bulk runs the single-item pipeline over a manifest with a bounded worker
// pool, per-item retry and a resumable ledger.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
	"github.com/mohammed-shakir/raster-intake/internal/pipeline"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

// CollectionEnsurer creates the target collection when it does not exist yet.
type CollectionEnsurer interface {
	EnsureCollection(ctx context.Context, c stac.Collection) error
}

type Options struct {
	JobID        string // generated when empty
	Concurrency  int
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
	ItemTimeout  time.Duration
	CollectionID string
	CatalogURL   string

	Ledger      LedgerStore       // in-memory when nil
	Collections CollectionEnsurer // optional
	Reports     objectstore.Store // optional, receives jobs/{id}/report.json
	ReportsKey  string            // key prefix inside Reports

	Logger *slog.Logger
	Now    func() time.Time
}

type Coordinator struct {
	proc Processor
	opts Options

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	id      string
	ledger  *Ledger
	started time.Time

	mu       sync.Mutex
	finished time.Time
	canceled bool
}

type task struct {
	ref    string
	itemID string
	retry  backoff.BackOff
}

func New(proc Processor, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryBase {
		opts.RetryMax = opts.RetryBase
	}
	if opts.Ledger == nil {
		opts.Ledger = NewMemoryLedger()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{proc: proc, opts: opts, runs: map[string]*run{}}
}

// Run processes refs until every entry is terminal or ctx is canceled. Per-item
// failures never fail the run; the error is reserved for setup problems.
func (c *Coordinator) Run(ctx context.Context, refs []string) (JobReport, error) {
	jobID := c.opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	ctx = logger.WithJobID(ctx, jobID)
	log := c.opts.Logger

	prior, err := c.opts.Ledger.Load(ctx, jobID)
	if err != nil {
		return JobReport{}, fmt.Errorf("load ledger %s: %w", jobID, err)
	}
	if c.opts.Collections != nil && c.opts.CollectionID != "" {
		col := stac.MinimalCollection(c.opts.CollectionID, c.opts.CatalogURL)
		if err := c.opts.Collections.EnsureCollection(ctx, col); err != nil {
			return JobReport{}, fmt.Errorf("ensure collection %s: %w", c.opts.CollectionID, err)
		}
	}

	r := &run{id: jobID, ledger: newLedger(c.opts.Now), started: c.opts.Now()}
	c.mu.Lock()
	c.runs[jobID] = r
	c.mu.Unlock()

	var todo []*task
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		e := Entry{Ref: ref, ItemID: pipeline.ItemID(ref), Status: StatusPending}
		if p, ok := prior[ref]; ok && p.Status == StatusSucceeded {
			e = p
			e.Resumed = true
		}
		if !r.ledger.add(e) || e.Resumed {
			continue
		}
		c.save(ctx, jobID, e)
		todo = append(todo, &task{ref: ref, itemID: e.ItemID, retry: c.newBackoff()})
	}
	log.InfoContext(ctx, "bulk job started",
		"items", len(todo), "resumed", len(r.ledger.order)-len(todo),
		"concurrency", c.opts.Concurrency, "max_retries", c.opts.MaxRetries)

	// Capacity covers every task, so re-enqueueing a retry never blocks.
	queue := make(chan *task, len(todo))
	var outstanding sync.WaitGroup
	outstanding.Add(len(todo))
	for _, t := range todo {
		queue <- t
	}
	go func() {
		outstanding.Wait()
		close(queue)
	}()

	var g errgroup.Group
	for range c.opts.Concurrency {
		g.Go(func() error {
			for t := range queue {
				c.handle(ctx, r, t, queue, &outstanding)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	r.finished = c.opts.Now()
	r.canceled = ctx.Err() != nil
	r.mu.Unlock()

	rep := r.report()
	for _, e := range rep.Items {
		if e.Status == StatusFailed {
			log.WarnContext(ctx, "item failed", "ref", e.Ref, "item", e.ItemID, "kind", e.ErrorKind, "err", e.Error)
		}
	}
	if c.opts.Reports != nil {
		if err := WriteReport(context.WithoutCancel(ctx), c.opts.Reports, c.opts.ReportsKey, rep); err != nil {
			log.ErrorContext(ctx, "write job report", "err", err)
		}
	}
	log.InfoContext(ctx, "bulk job finished",
		"total", rep.Total, "succeeded", rep.Succeeded, "failed", rep.Failed,
		"pending", rep.Pending, "canceled", rep.Canceled)
	return rep, nil
}

func (c *Coordinator) handle(ctx context.Context, r *run, t *task, queue chan<- *task, outstanding *sync.WaitGroup) {
	// canceled: leave the entry pending or retrying for the next run
	if ctx.Err() != nil {
		outstanding.Done()
		return
	}

	e := r.ledger.update(t.ref, func(e *Entry) {
		e.Status = StatusProcessing
		e.Attempts++
	})
	c.save(ctx, r.id, e)

	err := c.attempt(ctx, t)
	if err == nil {
		e = r.ledger.update(t.ref, func(e *Entry) {
			e.Status = StatusSucceeded
			e.ErrorKind, e.Error = "", ""
		})
		c.save(ctx, r.id, e)
		observability.IncItem(string(StatusSucceeded), "")
		outstanding.Done()
		return
	}

	kind := errkind.Kind(err)
	if errkind.Retryable(err) {
		if d := t.retry.NextBackOff(); d != backoff.Stop {
			e = r.ledger.update(t.ref, func(e *Entry) {
				e.Status = StatusRetrying
				e.ErrorKind, e.Error = kind, err.Error()
			})
			c.save(ctx, r.id, e)
			observability.IncRetry(kind)
			c.opts.Logger.WarnContext(logger.WithItemID(ctx, t.itemID), "item attempt failed, retrying",
				"ref", t.ref, "attempt", e.Attempts, "kind", kind, "delay", d, "err", err)
			go func() {
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-timer.C:
					queue <- t
				case <-ctx.Done():
					outstanding.Done()
				}
			}()
			return
		}
	}

	e = r.ledger.update(t.ref, func(e *Entry) {
		e.Status = StatusFailed
		e.ErrorKind, e.Error = kind, err.Error()
	})
	c.save(ctx, r.id, e)
	observability.IncItem(string(StatusFailed), kind)
	outstanding.Done()
}

// attempt runs one pipeline pass detached from job cancellation; only the per-item
// timeout can cut it short.
func (c *Coordinator) attempt(ctx context.Context, t *task) error {
	ictx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if c.opts.ItemTimeout > 0 {
		ictx, cancel = context.WithTimeout(ictx, c.opts.ItemTimeout)
	} else {
		ictx, cancel = context.WithCancel(ictx)
	}
	defer cancel()

	observability.IncInflight()
	defer observability.DecInflight()
	_, err := c.proc.Process(ictx, pipeline.Request{
		SourceRef:    t.ref,
		ItemID:       t.itemID,
		CollectionID: c.opts.CollectionID,
	})
	return err
}

func (c *Coordinator) newBackoff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.RetryBase
	exp.MaxInterval = c.opts.RetryMax
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(c.opts.MaxRetries))
}

func (c *Coordinator) save(ctx context.Context, jobID string, e Entry) {
	if err := c.opts.Ledger.Save(context.WithoutCancel(ctx), jobID, e); err != nil {
		c.opts.Logger.ErrorContext(ctx, "ledger save", "ref", e.Ref, "status", e.Status, "err", err)
	}
}

// Report returns the live or final report of a job started by this coordinator.
func (c *Coordinator) Report(jobID string) (JobReport, bool) {
	c.mu.Lock()
	r, ok := c.runs[jobID]
	c.mu.Unlock()
	if !ok {
		return JobReport{}, false
	}
	return r.report(), true
}
