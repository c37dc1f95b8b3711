// Package scheduler dispatches manifest-declared jobs on cron schedules
// and manual triggers onto per-queue worker pools with single-flight
// guarantees and persisted status tracking (spec.md §4.8).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/store"
)

// Status is a job instance's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// RunFunc executes one job instance within ctx, whose deadline is the
// job's configured budget, and returns a free-form scalar metrics map.
type RunFunc func(ctx context.Context) (map[string]any, error)

// jobKey identifies a (module, job) pair, the scheduler's single-flight unit.
type jobKey struct {
	module string
	job    string
}

func (k jobKey) String() string { return k.module + "/" + k.job }

type registration struct {
	key     jobKey
	queue   string
	schedule string
	budget  time.Duration
	run     RunFunc
}

type jobState struct {
	mu        sync.Mutex
	status    Status
	pending   bool // a scheduled tick is coalesced while true
	lastRunAt time.Time
	lastError string
}

// queueWorker serializes job instances for one queue. Concurrency is
// configurable per queue but defaults to 1 (single-flight per module,
// spec.md §4.8).
type queueWorker struct {
	name string
	ch   chan instance
}

type instance struct {
	id  string
	reg *registration
}

// Scheduler is the job dispatch engine: it owns cron ticks, a worker pool
// per queue, and persisted job status.
type Scheduler struct {
	st  *store.Store
	log *zap.Logger
	c   *cron.Cron

	mu     sync.RWMutex
	regs   map[jobKey]*registration
	states map[jobKey]*jobState
	queues map[string]*queueWorker
}

// New constructs a Scheduler backed by st, using robfig/cron's UTC
// interpretation of schedule strings (spec.md §4.8 "interpreted in UTC").
func New(st *store.Store, log *zap.Logger) *Scheduler {
	return &Scheduler{
		st:     st,
		log:    log,
		c:      cron.New(cron.WithLocation(time.UTC)),
		regs:   make(map[jobKey]*registration),
		states: make(map[jobKey]*jobState),
		queues: make(map[string]*queueWorker),
	}
}

// ensureQueue returns queue's worker, starting concurrency workers for it
// (at least 1, i.e. single-flight) the first time the queue is seen; later
// calls for an existing queue keep its original worker count.
func (s *Scheduler) ensureQueue(queue string, concurrency int) *queueWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qw, ok := s.queues[queue]; ok {
		return qw
	}
	qw := &queueWorker{name: queue, ch: make(chan instance, 64)}
	s.queues[queue] = qw
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go s.drainQueue(qw)
	}
	return qw
}

// Register binds a RunFunc to (module, job), scheduling it per schedule
// (a standard 5-field cron expression) if non-empty. Concurrency defaults
// to 1 per queue; pass a value >1 to widen the worker pool for that queue.
func (s *Scheduler) Register(module, job, queue, schedule string, budget time.Duration, concurrency int, run RunFunc) error {
	key := jobKey{module: module, job: job}
	reg := &registration{key: key, queue: queue, schedule: schedule, budget: budget, run: run}

	s.mu.Lock()
	s.regs[key] = reg
	s.states[key] = &jobState{status: StatusIdle}
	s.mu.Unlock()

	s.ensureQueue(queue, concurrency)

	if schedule == "" {
		return nil
	}
	_, err := s.c.AddFunc(schedule, func() { s.tick(key) })
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", key, err)
	}
	return nil
}

// Start launches cron dispatch. Call Stop on shutdown.
func (s *Scheduler) Start() { s.c.Start() }

// Stop drains in-flight cron dispatch (not running job instances, which
// observe ctx cancellation via their own budget deadlines).
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}

// tick is invoked by robfig/cron at each scheduled fire. A tick is
// coalesced (dropped) if an instance for this job is already pending or
// running — "at most one pending instance per job" (spec.md §4.8).
func (s *Scheduler) tick(key jobKey) {
	s.mu.RLock()
	reg, regOK := s.regs[key]
	st, stOK := s.states[key]
	s.mu.RUnlock()
	if !regOK || !stOK {
		return
	}

	st.mu.Lock()
	if st.pending || st.status == StatusRunning {
		st.mu.Unlock()
		s.log.Debug("scheduler: tick coalesced", zap.String("job", key.String()))
		return
	}
	st.pending = true
	st.mu.Unlock()

	s.enqueue(reg)
}

// RunNow enqueues a manual instance, even if one is already pending — it
// queues behind the current run; single-flight is still honored at
// dispatch (spec.md §4.8).
func (s *Scheduler) RunNow(module, job string) (string, error) {
	key := jobKey{module: module, job: job}
	s.mu.RLock()
	reg, ok := s.regs[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("scheduler: unknown job %s", key)
	}
	return s.enqueue(reg), nil
}

func (s *Scheduler) enqueue(reg *registration) string {
	id := uuid.NewString()
	s.mu.RLock()
	qw := s.queues[reg.queue]
	s.mu.RUnlock()
	qw.ch <- instance{id: id, reg: reg}
	return id
}

func (s *Scheduler) drainQueue(qw *queueWorker) {
	for inst := range qw.ch {
		s.run(inst)
	}
}

// run executes one job instance to completion, persisting status
// transitions idle → running → {success, error} (spec.md §4.8).
func (s *Scheduler) run(inst instance) {
	reg := inst.reg
	key := reg.key

	s.mu.RLock()
	st := s.states[key]
	s.mu.RUnlock()

	st.mu.Lock()
	st.status = StatusRunning
	st.pending = false
	st.lastRunAt = time.Now().UTC()
	st.mu.Unlock()

	ctx := context.Background()
	var cancel context.CancelFunc
	if reg.budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, reg.budget)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	metrics, err := func() (m map[string]any, runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("scheduler: job %s panicked: %v", key, r)
			}
		}()
		return reg.run(ctx)
	}()
	endedAt := time.Now().UTC()

	status := StatusSuccess
	errText := ""
	if err != nil {
		status = StatusError
		errText = err.Error()
		s.log.Error("job failed", zap.String("job", key.String()), zap.Error(err))
	}

	st.mu.Lock()
	st.status = status
	st.lastError = errText
	st.mu.Unlock()

	if s.st == nil {
		return // store-less scheduler: status tracking only (used in tests)
	}
	// The budget ctx has usually expired by now (streaming sweeps run until
	// it does), so persistence gets its own short deadline.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()
	if persistErr := s.persist(persistCtx, inst.id, key, status, startedAt, endedAt, errText, metrics); persistErr != nil {
		s.log.Error("scheduler: failed to persist job instance", zap.Error(persistErr))
	}
}

func (s *Scheduler) persist(ctx context.Context, id string, key jobKey, status Status, startedAt, endedAt time.Time, errText string, metrics map[string]any) error {
	return s.st.Exec(ctx, `
		INSERT INTO job_instances (id, module, job, status, started_at, ended_at, error, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, id, key.module, key.job, string(status), startedAt, endedAt, errText, toJSONB(metrics))
}

// StatusOf returns the last-observed status for (module, job).
func (s *Scheduler) StatusOf(module, job string) (Status, time.Time, string, bool) {
	s.mu.RLock()
	st, ok := s.states[jobKey{module: module, job: job}]
	s.mu.RUnlock()
	if !ok {
		return "", time.Time{}, "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status, st.lastRunAt, st.lastError, true
}
