package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SNU-SE/analysisq/internal/backoff"
	"github.com/SNU-SE/analysisq/internal/broker"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/SNU-SE/analysisq/internal/notify"
	"github.com/SNU-SE/analysisq/internal/provider"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Worker pulls job ids off the broker, claims them in the database and
// runs every requested provider against the paper. Outcome writes carry
// the claim-time attempt count, so a worker whose stuck claim was
// released and handed to someone else can no longer overwrite the job.
type Worker struct {
	ID       int
	repo     job.JobRepoInterface
	broker   broker.Broker
	registry *provider.Registry
	notifier notify.Notifier
	alerter  notify.Alerter
	policy   backoff.Policy
	stats    *Stats
	log      *zap.Logger
	quit     chan struct{}
}

// Deps carries everything a worker needs. Stats and Log may be nil.
type Deps struct {
	Repo     job.JobRepoInterface
	Broker   broker.Broker
	Registry *provider.Registry
	Notifier notify.Notifier
	Alerter  notify.Alerter
	Policy   backoff.Policy
	Stats    *Stats
	Log      *zap.Logger
}

func New(id int, d Deps) *Worker {
	if d.Stats == nil {
		d.Stats = &Stats{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Worker{
		ID:       id,
		repo:     d.Repo,
		broker:   d.Broker,
		registry: d.Registry,
		notifier: d.Notifier,
		alerter:  d.Alerter,
		policy:   d.Policy,
		stats:    d.Stats,
		log:      d.Log.With(zap.Int("worker", id)),
		quit:     make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		currentDelay := 1 * time.Second
		maxDelay := 60 * time.Second

		for {
			j := w.pullJob(ctx)

			if j != nil {
				w.process(ctx, j)
				currentDelay = 1 * time.Second
			} else {
				currentDelay = min(currentDelay*2, maxDelay)
			}

			select {
			case <-time.After(currentDelay):
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.quit) }

// pullJob reserves the best id from the broker and claims it. A reserved
// id that is no longer claimable, cancelled while it sat in the queue
// for instance, is dropped: the database decides, not the broker.
func (w *Worker) pullJob(ctx context.Context) *models.AnalysisJob {
	id, ok, err := w.broker.Reserve(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("reserve failed", zap.Error(err))
		}
		return nil
	}
	if !ok {
		return nil
	}

	j, err := w.repo.Claim(ctx, id, time.Now())
	if err != nil {
		w.log.Warn("claim failed", zap.String("job_id", id), zap.Error(err))
		return nil
	}
	if j == nil {
		w.log.Debug("reserved job no longer claimable", zap.String("job_id", id))
		return nil
	}
	return j
}

func (w *Worker) process(ctx context.Context, j *models.AnalysisJob) {
	w.stats.start()
	defer w.stats.done()

	log := w.log.With(zap.String("job_id", j.ID), zap.Int("attempt", j.Attempts))
	log.Info("job started", zap.String("paper_id", j.PaperID))

	var names []string
	if err := json.Unmarshal(j.Providers, &names); err != nil {
		w.fail(ctx, j, fmt.Sprintf("invalid provider list: %v", err), backoff.KindPermanent, log)
		return
	}
	if len(names) == 0 {
		w.fail(ctx, j, "no providers requested", backoff.KindPermanent, log)
		return
	}

	results := make([]provider.Result, 0, len(names))
	failures := make(map[string]string, len(names))
	kinds := make([]backoff.Kind, 0, len(names))

	for i, name := range names {
		if w.cancelled(ctx, j, log) {
			return
		}

		res, err := w.analyzeOne(ctx, j, name)
		if err != nil {
			if ctx.Err() != nil {
				// Shutting down mid-job. Leave the claim alone; the
				// stale sweep will hand the job to another worker.
				log.Info("shutdown during job, abandoning claim")
				return
			}
			failures[name] = err.Error()
			kinds = append(kinds, backoff.Classify(err))
			log.Warn("provider failed", zap.String("provider", name), zap.Error(err))
		} else {
			results = append(results, *res)
		}

		w.progress(ctx, j, (i+1)*100/len(names), log)
	}

	if w.cancelled(ctx, j, log) {
		return
	}

	if len(results) > 0 {
		w.complete(ctx, j, names, results, failures, log)
		return
	}

	// Every provider failed. The worst classification decides what
	// happens: a systemic failure alerts and fails outright, a transient
	// one retries while the budget lasts, anything else is final.
	msg := joinFailures(names, failures)
	worst := backoff.Severest(kinds)
	switch {
	case worst == backoff.KindCritical:
		w.alerter.Alert(ctx, j.ID, errors.New(msg))
		w.fail(ctx, j, msg, worst, log)
	case worst == backoff.KindRetryable && j.Attempts < j.MaxAttempts:
		w.retry(ctx, j, msg, log)
	default:
		w.fail(ctx, j, msg, worst, log)
	}
}

func (w *Worker) analyzeOne(ctx context.Context, j *models.AnalysisJob, name string) (*provider.Result, error) {
	p, ok := w.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider %s is not registered", name)
	}
	return p.Analyze(ctx, provider.Request{
		JobID:   j.ID,
		PaperID: j.PaperID,
		OwnerID: j.OwnerID,
	})
}

// cancelled is the cooperative checkpoint. When the flag is set the job
// moves to cancelled and the worker walks away without a notification;
// cancellation is an owner action, not an outcome worth announcing.
func (w *Worker) cancelled(ctx context.Context, j *models.AnalysisJob, log *zap.Logger) bool {
	flagged, err := w.repo.CancelRequested(ctx, j.ID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("cancel check failed", zap.Error(err))
		}
		return false
	}
	if !flagged {
		return false
	}

	if err := w.repo.MarkCancelled(ctx, j.ID, j.Attempts); err != nil {
		if errors.Is(err, job.ErrInvalidState) {
			log.Warn("claim lost before cancel could land")
		} else {
			log.Error("mark cancelled failed", zap.Error(err))
		}
		return true
	}
	log.Info("job cancelled at checkpoint")
	return true
}

func (w *Worker) progress(ctx context.Context, j *models.AnalysisJob, pct int, log *zap.Logger) {
	if err := w.repo.UpdateProgress(ctx, j.ID, j.Attempts, pct); err != nil {
		log.Warn("progress update failed", zap.Error(err))
	}
}

func (w *Worker) complete(ctx context.Context, j *models.AnalysisJob, names []string, results []provider.Result, failures map[string]string, log *zap.Logger) {
	doc := map[string]any{"results": results}
	if len(failures) > 0 {
		doc["failures"] = failures
	}
	b, err := json.Marshal(doc)
	if err != nil {
		w.fail(ctx, j, fmt.Sprintf("encode result: %v", err), backoff.KindPermanent, log)
		return
	}

	if err := w.repo.MarkCompleted(ctx, j.ID, j.Attempts, datatypes.JSON(b)); err != nil {
		if errors.Is(err, job.ErrInvalidState) {
			log.Warn("claim lost, completion dropped")
			return
		}
		log.Error("mark completed failed", zap.Error(err))
		return
	}

	w.stats.processed.Add(1)
	summary := fmt.Sprintf("%d/%d providers completed", len(results), len(names))
	if len(failures) > 0 {
		summary += ", failed: " + strings.Join(failedNames(names, failures), ", ")
	}
	log.Info("job completed", zap.String("summary", summary))

	w.emit(ctx, notify.Event{
		Type:    notify.TypeAnalysisComplete,
		OwnerID: j.OwnerID,
		JobID:   j.ID,
		Summary: summary,
	}, log)
}

func (w *Worker) retry(ctx context.Context, j *models.AnalysisJob, msg string, log *zap.Logger) {
	delay := w.policy.Delay(j.Attempts - 1)
	notBefore := time.Now().Add(delay)

	if err := w.repo.RetryLater(ctx, j.ID, j.Attempts, notBefore); err != nil {
		if errors.Is(err, job.ErrInvalidState) {
			log.Warn("claim lost, retry dropped")
			return
		}
		log.Error("retry later failed", zap.Error(err))
		return
	}

	if err := w.broker.Delay(ctx, j.ID, j.Priority, notBefore); err != nil {
		log.Warn("delay publish failed, job waits for reconcile", zap.Error(err))
	}

	log.Info("job scheduled for retry",
		zap.Duration("delay", delay),
		zap.String("cause", msg),
	)
}

func (w *Worker) fail(ctx context.Context, j *models.AnalysisJob, msg string, kind backoff.Kind, log *zap.Logger) {
	if err := w.repo.MarkFailed(ctx, j.ID, j.Attempts, msg, kind.String()); err != nil {
		if errors.Is(err, job.ErrInvalidState) {
			log.Warn("claim lost, failure dropped")
			return
		}
		log.Error("mark failed failed", zap.Error(err))
		return
	}

	w.stats.failed.Add(1)
	log.Info("job failed",
		zap.String("kind", kind.String()),
		zap.String("error", msg),
	)

	w.emit(ctx, notify.Event{
		Type:    notify.TypeAnalysisFailed,
		OwnerID: j.OwnerID,
		JobID:   j.ID,
		Summary: msg,
	}, log)
}

func (w *Worker) emit(ctx context.Context, ev notify.Event, log *zap.Logger) {
	if err := w.notifier.Notify(ctx, ev); err != nil {
		log.Warn("notification failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// joinFailures renders per-provider failures in request order so the
// stored error message is stable.
func joinFailures(names []string, failures map[string]string) string {
	parts := make([]string, 0, len(failures))
	for _, n := range names {
		if msg, ok := failures[n]; ok {
			parts = append(parts, n+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

func failedNames(names []string, failures map[string]string) []string {
	out := make([]string, 0, len(failures))
	for _, n := range names {
		if _, ok := failures[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
