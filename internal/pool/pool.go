package pool

import (
	"context"
	"sync"
	"time"

	"github.com/SNU-SE/analysisq/internal/broker"
	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/worker"
	"go.uber.org/zap"
)

// Config sizes the pool and its janitor. StaleAfter is how long a
// processing job may go without a heartbeat before its claim is released.
// ReconcileAfter is how long a due pending job may sit untouched before
// it is republished to the broker.
type Config struct {
	Workers        int
	StaleAfter     time.Duration
	ReconcileAfter time.Duration
	JanitorTick    time.Duration
}

type WorkerPool struct {
	workers []*worker.Worker
	repo    job.JobRepoInterface
	broker  broker.Broker
	cfg     Config
	stats   *worker.Stats
	log     *zap.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorkerPool(cfg Config, d worker.Deps) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.ReconcileAfter <= 0 {
		cfg.ReconcileAfter = 10 * time.Minute
	}
	if cfg.JanitorTick <= 0 {
		cfg.JanitorTick = 30 * time.Second
	}
	if d.Stats == nil {
		d.Stats = &worker.Stats{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		repo:   d.Repo,
		broker: d.Broker,
		cfg:    cfg,
		stats:  d.Stats,
		log:    d.Log,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 1; i <= cfg.Workers; i++ {
		p.workers = append(p.workers, worker.New(i, d))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	p.wg.Add(1)
	go p.janitor()
}

func (p *WorkerPool) janitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.JanitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep(p.ctx, time.Now())
		case <-p.ctx.Done():
			return
		}
	}
}

// sweep is one janitor pass: promote delayed jobs that are due, free
// claims whose worker stopped heartbeating, and republish due pending
// jobs the broker has lost. Publish is idempotent, so sweeping a healthy
// queue changes nothing.
func (p *WorkerPool) sweep(ctx context.Context, now time.Time) {
	if n, err := p.broker.MoveDue(ctx, now); err != nil {
		p.log.Warn("janitor: move due failed", zap.Error(err))
	} else if n > 0 {
		p.log.Debug("janitor: promoted delayed jobs", zap.Int("count", n))
	}

	stuck, err := p.repo.ListStuckProcessing(ctx, now.Add(-p.cfg.StaleAfter))
	if err != nil {
		p.log.Warn("janitor: stuck scan failed", zap.Error(err))
	}
	for _, j := range stuck {
		p.log.Warn("janitor: releasing stuck job",
			zap.String("job_id", j.ID),
			zap.Int("attempts", j.Attempts),
		)
		if err := p.repo.Release(ctx, j.ID); err != nil {
			p.log.Error("janitor: release failed", zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		if err := p.broker.Publish(ctx, j.ID, j.Priority); err != nil {
			p.log.Warn("janitor: republish failed", zap.String("job_id", j.ID), zap.Error(err))
		}
	}

	dropped, err := p.repo.ListDroppedPending(ctx, now, now.Add(-p.cfg.ReconcileAfter))
	if err != nil {
		p.log.Warn("janitor: reconcile scan failed", zap.Error(err))
	}
	for _, j := range dropped {
		if err := p.broker.Publish(ctx, j.ID, j.Priority); err != nil {
			p.log.Warn("janitor: republish failed", zap.String("job_id", j.ID), zap.Error(err))
			continue
		}
		p.log.Info("janitor: republished dropped job", zap.String("job_id", j.ID))
	}
}

func (p *WorkerPool) Stats() dto.WorkerStatsResponse {
	return p.stats.Snapshot()
}

func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
