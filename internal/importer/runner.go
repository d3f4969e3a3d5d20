package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pubrec/internal/platform/metrics"
)

// Locker serializes runs of the same feed across processes. Release is safe
// to call once the run finishes either way.
type Locker interface {
	Acquire(ctx context.Context, feed string) (release func(), err error)
}

// Runner executes reconciliation runs. Per-row failures are caught locally
// and recorded in the task audit record; they never abort the batch.
type Runner struct {
	tasks     TaskStore
	registry  *Registry
	lock      Locker
	log       *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
	tracer    trace.Tracer
	now       func() time.Time
}

func NewRunner(tasks TaskStore, registry *Registry, lock Locker, log *slog.Logger, m *metrics.Metrics, batchSize int) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Runner{
		tasks:     tasks,
		registry:  registry,
		lock:      lock,
		log:       log,
		metrics:   m,
		batchSize: batchSize,
		tracer:    otel.Tracer("pubrec/importer"),
		now:       time.Now,
	}
}

// rowResult is the immutable outcome of one row. The task record is only
// assembled from these at checkpoints, never mutated mid-row.
type rowResult struct {
	ok     bool
	status RowStatus
}

// Run executes one reconciliation run for the named feed and returns its task
// audit record. Row-level failures do not produce an error here; they are
// visible only in the task record. An error is returned when the run could
// not be executed at all: unknown feed, lock held, task store failure, or a
// feed fetch failure (with ErrAuth recorded as the task's terminal status).
func (r *Runner) Run(ctx context.Context, feedName string) (*TaskRecord, error) {
	reg, ok := r.registry.Lookup(feedName)
	if !ok {
		return nil, fmt.Errorf("unknown feed %q", feedName)
	}
	feed := reg.Feed

	ctx, span := r.tracer.Start(ctx, "importer.Run",
		trace.WithAttributes(attribute.String("feed", feedName)))
	defer span.End()

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, feedName)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock for %s: %w", feedName, err)
		}
		defer release()
	}

	start := r.now()
	task := &TaskRecord{
		ID:        uuid.New(),
		Feed:      feedName,
		Status:    StatusRunning,
		StartedAt: start,
	}
	if err := r.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task record: %w", err)
	}

	rows, err := feed.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrAuth) {
			task.Status = StatusAuthError
			task.FinishedAt = r.now()
			if uerr := r.tasks.Update(ctx, task); uerr != nil {
				r.log.Error("persist auth-error task status", "task_id", task.ID.String(), "error", uerr)
			}
			r.log.Error("feed authentication failed", "feed", feedName, "error", err)
			return task, err
		}
		return task, fmt.Errorf("fetch %s rows: %w", feedName, err)
	}

	task.ItemTotal = len(rows)
	if err := r.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("persist item total: %w", err)
	}

	// A rerun over the same rows must converge to the same records; any
	// accumulator the handler carries has to start empty.
	if rs, ok := reg.Handler.(RunScoped); ok {
		rs.BeginRun()
	}

	var results []rowResult
	if feed.Sequential() {
		results = r.runSequential(ctx, reg, rows, task)
	} else {
		results = r.runBatched(ctx, reg, rows, task)
	}

	task = assembleTask(task, results)
	task.Status = StatusCompleted
	task.FinishedAt = r.now()
	if err := r.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("persist completed task: %w", err)
	}

	failed := len(task.IndividualRecordStatus)
	if r.metrics != nil {
		r.metrics.ObserveRun(feedName, task.ItemsProcessed, failed, r.now().Sub(start))
	}
	r.log.Info("reconciliation run finished",
		"feed", feedName,
		"task_id", task.ID.String(),
		"item_total", task.ItemTotal,
		"items_processed", task.ItemsProcessed,
		"failed", failed,
	)
	return task, nil
}

// runSequential processes rows strictly in input order, checkpointing the
// task record after every row.
func (r *Runner) runSequential(ctx context.Context, reg Registration, rows []Row, task *TaskRecord) []rowResult {
	results := make([]rowResult, 0, len(rows))
	for i, row := range rows {
		results = append(results, r.processRow(ctx, reg, i, row))
		r.checkpoint(ctx, task, results)
	}
	return results
}

// runBatched processes independent rows in bounded concurrent groups: at most
// batchSize rows are in flight, and each group drains before the next starts.
// The task record is checkpointed once per group.
func (r *Runner) runBatched(ctx context.Context, reg Registration, rows []Row, task *TaskRecord) []rowResult {
	results := make([]rowResult, len(rows))
	for begin := 0; begin < len(rows); begin += r.batchSize {
		end := begin + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := begin; i < end; i++ {
			g.Go(func() error {
				results[i] = r.processRow(gctx, reg, i, rows[i])
				return nil // bulkhead: row failures live in results, not the group
			})
		}
		_ = g.Wait()

		r.checkpoint(ctx, task, results[:end])
	}
	return results
}

// processRow runs transform, find existing, then create or update for one
// row. All
// failure modes, panics included, collapse into a failed rowResult so one bad
// row can never take the batch down.
func (r *Runner) processRow(ctx context.Context, reg Registration, idx int, row Row) (res rowResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = failedRow(idx, "row processing panicked", fmt.Errorf("%v", rec))
		}
	}()

	handler := reg.Handler

	rec, err := handler.Transform(row)
	if err != nil {
		return failedRow(idx, "transform failed", err)
	}

	existing, err := handler.FindExisting(ctx, rec)
	if err != nil {
		return failedRow(idx, "find existing record failed", err)
	}

	if existing == nil {
		if err := handler.Create(ctx, rec); err != nil {
			return failedRow(idx, "create record failed", err)
		}
	} else {
		if err := handler.Update(ctx, existing, rec); err != nil {
			return failedRow(idx, "update record failed", err)
		}
	}
	return rowResult{ok: true}
}

func failedRow(idx int, message string, err error) rowResult {
	return rowResult{status: RowStatus{
		Message: fmt.Sprintf("row %d: %s", idx, message),
		Error:   err.Error(),
	}}
}

// checkpoint persists current progress. A checkpoint failure is logged and
// tolerated: losing a progress write must not fail rows that already landed.
func (r *Runner) checkpoint(ctx context.Context, task *TaskRecord, results []rowResult) {
	snapshot := assembleTask(task, results)
	if err := r.tasks.Update(ctx, snapshot); err != nil {
		r.log.Error("persist task checkpoint", "task_id", task.ID.String(), "error", err)
	}
}

// assembleTask derives a task record from the row results so far. Results are
// the source of truth; the stored record is always a pure function of them.
func assembleTask(task *TaskRecord, results []rowResult) *TaskRecord {
	out := *task
	out.ItemsProcessed = 0
	out.IndividualRecordStatus = nil
	for _, res := range results {
		if res.ok {
			out.ItemsProcessed++
		} else if res.status != (RowStatus{}) {
			out.IndividualRecordStatus = append(out.IndividualRecordStatus, res.status)
		}
	}
	return &out
}
