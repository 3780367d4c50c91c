package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/pkg/logger"
)

// WorkFunc executes one unit of background work with its metadata
// payload. The queue treats any returned error as unrecoverable for
// this job row; retry policy lives with the work itself.
type WorkFunc func(ctx context.Context, metadata json.RawMessage) error

const (
	// DefaultRecoveryInterval is how often stale claims are swept.
	DefaultRecoveryInterval = 2 * time.Minute
	// DefaultStaleAge is how long a started job may hold its claim
	// before the sweep treats the worker as dead.
	DefaultStaleAge = 5 * time.Minute
)

// Queue is the durable background job queue.
type Queue struct {
	repo             Repository
	enabled          bool
	workers          int
	pollInterval     time.Duration
	recoveryInterval time.Duration
	staleAge         time.Duration

	regMu    sync.RWMutex
	registry map[string]WorkFunc

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a job queue. When enabled is false, AddQueuedJob is
// a no-op; workers and pollInterval tune the execution pool.
func NewQueue(repo Repository, enabled bool, workers int, pollInterval time.Duration) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Queue{
		repo:             repo,
		enabled:          enabled,
		workers:          workers,
		pollInterval:     pollInterval,
		recoveryInterval: DefaultRecoveryInterval,
		staleAge:         DefaultStaleAge,
		registry:         make(map[string]WorkFunc),
	}
}

// SetRecovery overrides the stale claim sweep cadence and staleness
// threshold. Must be called before Start.
func (q *Queue) SetRecovery(interval, staleAge time.Duration) {
	if interval > 0 {
		q.recoveryInterval = interval
	}
	if staleAge > 0 {
		q.staleAge = staleAge
	}
}

// Register binds a work function to the method name jobs reference in
// their metadata. Must be called before Start.
func (q *Queue) Register(method string, fn WorkFunc) {
	q.regMu.Lock()
	q.registry[method] = fn
	q.regMu.Unlock()
}

// AddQueuedJob persists a job for background execution and returns its
// handle. Returns (nil, nil) when the queue is disabled by
// configuration, and also when a live job with the same name already
// exists: at most one instance of a named job may be queued or running.
func (q *Queue) AddQueuedJob(ctx context.Context, name, method string, metadata interface{}) (*domain.Job, error) {
	if !q.enabled {
		return nil, nil
	}

	payload, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal metadata: %w", err)
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		Name:       name,
		Status:     domain.JobQueued,
		Method:     method,
		Metadata:   payload,
		QueueEntry: domain.QueueEntryPresent,
		CreatedAt:  time.Now().UTC(),
	}

	inserted, err := q.repo.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("jobs: insert: %w", err)
	}
	if !inserted {
		logger.Debug("job already live, not re-queued", "job", name)
		return nil, nil
	}
	return job, nil
}

// Start launches the worker pool. No-op when the queue is disabled or
// already running.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running || !q.enabled {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.mu.Unlock()

	logger.Info("job queue starting", "workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(fmt.Sprintf("queue-worker-%d", i))
	}
	q.wg.Add(1)
	go q.recoveryLoop()
}

// Stop drains the worker pool, waiting for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	logger.Info("job queue stopped")
}

func (q *Queue) workerLoop(workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		job, err := q.repo.ClaimNext(q.ctx, workerID)
		if err != nil {
			if q.ctx.Err() != nil {
				return
			}
			logger.Error("job claim failed", "worker", workerID, "err", err.Error())
			q.sleep()
			continue
		}
		if job == nil {
			q.sleep()
			continue
		}

		q.execute(job, workerID)
	}
}

func (q *Queue) execute(job *domain.Job, workerID string) {
	q.regMu.RLock()
	fn, ok := q.registry[job.Method]
	q.regMu.RUnlock()

	if !ok {
		logger.Error("no work function registered", "job", job.Name, "method", job.Method)
		if err := q.repo.MarkFailed(q.ctx, job.ID, "unknown method "+job.Method); err != nil {
			logger.Error("mark failed", "job", job.Name, "err", err.Error())
		}
		return
	}

	logger.Info("job started", "job", job.Name, "worker", workerID)
	if err := fn(q.ctx, job.Metadata); err != nil {
		logger.Error("job failed", "job", job.Name, "err", err.Error())
		if mErr := q.repo.MarkFailed(q.ctx, job.ID, err.Error()); mErr != nil {
			logger.Error("mark failed", "job", job.Name, "err", mErr.Error())
		}
		return
	}

	if err := q.repo.Delete(q.ctx, job.ID); err != nil {
		logger.Error("delete finished job", "job", job.Name, "err", err.Error())
		return
	}
	logger.Info("job finished", "job", job.Name)
}

// recoveryLoop sweeps claims abandoned by crashed workers back to
// queued so they run again and stop blocking same-name jobs. The first
// sweep runs immediately to pick up rows left over from a restart.
func (q *Queue) recoveryLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.recoveryInterval)
	defer ticker.Stop()

	for {
		q.requeueStale()
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) requeueStale() {
	n, err := q.repo.RequeueStale(q.ctx, q.staleAge)
	if err != nil {
		if q.ctx.Err() == nil {
			logger.Error("requeue stale jobs", "err", err.Error())
		}
		return
	}
	if n > 0 {
		logger.Warn("requeued stale jobs", "count", n, "stale_age", q.staleAge.String())
	}
}

func (q *Queue) sleep() {
	timer := time.NewTimer(q.pollInterval)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
	case <-timer.C:
	}
}
