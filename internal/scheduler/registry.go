package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sdmhttp "github.com/tanq16/sdm/internal/downloaders/http"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrNotTerminal = errors.New("task is still active")
)

type Options struct {
	// Task is the template every new task is created from. Its Throttle,
	// SharedLimiter and Connections are owned by the registry.
	Task           sdmhttp.Config
	ParallelTasks  int
	SpeedLimit     int64
	GlobalLimit    int64
	MaxConnections int
	Client         sdmhttp.Doer
	Reporter       sdmhttp.Reporter
	Logger         zerolog.Logger
}

// Registry owns the set of tasks of one process. It shares a speed ceiling,
// a bandwidth limiter and a connection cap across all of them, starts tasks
// immediately or through the Scheduler, and reports when every task is done.
type Registry struct {
	ctx      context.Context
	opts     Options
	reporter sdmhttp.Reporter
	throttle *sdmhttp.Throttle
	limiter  *rate.Limiter
	conns    *semaphore.Weighted
	slots    *semaphore.Weighted
	sched    *Scheduler
	log      zerolog.Logger
	running  sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*sdmhttp.Task
	order     []string
	added     int
	pausedAll bool
	allDone   chan struct{}
	doneOnce  sync.Once
}

// NewRegistry creates a registry whose tasks and scheduler live until ctx
// is done.
func NewRegistry(ctx context.Context, opts Options) *Registry {
	if opts.ParallelTasks <= 0 {
		opts.ParallelTasks = 1
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 64
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	opts.Task.Logger = opts.Logger
	r := &Registry{
		ctx:      ctx,
		opts:     opts,
		throttle: sdmhttp.NewThrottle(opts.SpeedLimit),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		conns:    semaphore.NewWeighted(int64(opts.MaxConnections)),
		slots:    semaphore.NewWeighted(int64(opts.ParallelTasks)),
		sched:    NewScheduler(opts.Logger),
		log:      opts.Logger.With().Str("op", "scheduler").Logger(),
		tasks:    make(map[string]*sdmhttp.Task),
		allDone:  make(chan struct{}),
	}
	r.reporter = &registryReporter{next: opts.Reporter, reg: r}
	r.SetGlobalLimit(opts.GlobalLimit)
	go r.sched.Run(ctx)
	return r
}

// Add creates a pending task downloading rawURL to outputPath. A directory
// path (trailing separator) keeps the file name from the URL.
func (r *Registry) Add(rawURL, outputPath string) (*sdmhttp.Task, error) {
	dir, name := filepath.Split(outputPath)
	if dir == "" {
		dir = "."
	}
	cfg := r.opts.Task
	cfg.Throttle = r.throttle
	cfg.SharedLimiter = r.limiter
	cfg.Connections = r.conns
	task, err := sdmhttp.NewTask(rawURL, dir, name, r.opts.Client, r.reporter, cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.tasks[task.ID()] = task
	r.order = append(r.order, task.ID())
	r.added++
	r.mu.Unlock()
	r.log.Info().Str("task", task.ID()).Str("url", rawURL).Str("file", task.Path()).Msg("task added")
	return task, nil
}

func (r *Registry) Get(id string) (*sdmhttp.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// List returns snapshots in insertion order.
func (r *Registry) List() []sdmhttp.Snapshot {
	r.mu.Lock()
	tasks := make([]*sdmhttp.Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	r.mu.Unlock()
	snapshots := make([]sdmhttp.Snapshot, 0, len(tasks))
	for _, task := range tasks {
		snapshots = append(snapshots, task.Snapshot())
	}
	return snapshots
}

// Start runs the task in the background once a parallel-task slot is free.
func (r *Registry) Start(id string) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	r.running.Add(1)
	go func() {
		defer r.running.Done()
		if err := r.slots.Acquire(r.ctx, 1); err != nil {
			return
		}
		defer r.slots.Release(1)
		if err := task.Start(r.ctx); err != nil {
			r.log.Debug().Str("task", id).Err(err).Msg("task returned")
		}
	}()
	return nil
}

// Schedule starts the task at the given time, or right away if that time
// has already passed.
func (r *Registry) Schedule(id string, at time.Time) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	task.Schedule(at)
	if !at.After(time.Now()) {
		return r.Start(id)
	}
	r.sched.Add(id, at, func() {
		if err := r.Start(id); err != nil {
			r.log.Warn().Str("task", id).Err(err).Msg("scheduled task vanished")
		}
	})
	return nil
}

func (r *Registry) Pause(id string) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	task.Pause()
	return nil
}

func (r *Registry) Resume(id string) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	task.Resume()
	return nil
}

// PauseAll pauses every downloading task and keeps pausing tasks that start
// downloading until ResumeAll.
func (r *Registry) PauseAll() {
	r.mu.Lock()
	r.pausedAll = true
	r.mu.Unlock()
	for _, task := range r.snapshotTasks() {
		task.Pause()
	}
	r.log.Info().Msg("paused all downloads")
}

func (r *Registry) ResumeAll() {
	r.mu.Lock()
	r.pausedAll = false
	r.mu.Unlock()
	for _, task := range r.snapshotTasks() {
		task.Resume()
	}
	r.log.Info().Msg("resumed all downloads")
}

func (r *Registry) pausedAllSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedAll
}

// TogglePauseAll flips between PauseAll and ResumeAll and reports whether
// downloads are now paused.
func (r *Registry) TogglePauseAll() bool {
	if r.pausedAllSet() {
		r.ResumeAll()
		return false
	}
	r.PauseAll()
	return true
}

// Cancel stops a task, deletes its partial file and drops it from the
// registry. The task is dropped even if the file could not be deleted.
func (r *Registry) Cancel(id string) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	r.sched.Remove(id)
	err := task.Cancel()
	r.drop(id)
	return err
}

// CancelAll cancels every task that hasn't finished. Finished tasks stay.
func (r *Registry) CancelAll() error {
	var errs []error
	for _, task := range r.snapshotTasks() {
		if task.Status() == sdmhttp.StatusCompleted {
			continue
		}
		if err := r.Cancel(task.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove forgets a finished task. The downloaded file is kept.
func (r *Registry) Remove(id string) error {
	task, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if !task.Status().Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, id, task.Status())
	}
	r.drop(id)
	return nil
}

func (r *Registry) drop(id string) {
	r.mu.Lock()
	_, ok := r.tasks[id]
	delete(r.tasks, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	if ok {
		r.opts.Reporter.OnRemoved(id)
		r.checkDone()
	}
}

// SetSpeedLimit changes the per-task ceiling of every task, running ones
// included. 0 removes it.
func (r *Registry) SetSpeedLimit(bytesPerSecond int64) {
	r.throttle.SetLimit(bytesPerSecond)
	r.log.Info().Int64("limit", r.throttle.Limit()).Msg("speed limit changed")
}

func (r *Registry) SpeedLimit() int64 {
	return r.throttle.Limit()
}

// SetGlobalLimit caps the combined throughput of all tasks. 0 removes it.
func (r *Registry) SetGlobalLimit(bytesPerSecond int64) {
	if bytesPerSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	increment := r.opts.Task.ChunkIncrement
	if increment <= 0 {
		increment = sdmhttp.DefaultChunkIncrement
	}
	r.limiter.SetBurst(max(int(bytesPerSecond), increment))
	r.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// AllDone is closed once at least one task was added and every remaining
// task has reached a terminal status.
func (r *Registry) AllDone() <-chan struct{} {
	return r.allDone
}

// Wait blocks until every started task goroutine has returned.
func (r *Registry) Wait() {
	r.running.Wait()
}

func (r *Registry) snapshotTasks() []*sdmhttp.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := make([]*sdmhttp.Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	return tasks
}

func (r *Registry) checkDone() {
	r.mu.Lock()
	if r.added == 0 {
		r.mu.Unlock()
		return
	}
	tasks := make([]*sdmhttp.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.Unlock()
	for _, task := range tasks {
		if !task.Status().Terminal() {
			return
		}
	}
	r.doneOnce.Do(func() {
		r.log.Info().Msg("all downloads finished")
		close(r.allDone)
	})
}

// registryReporter forwards task events and watches for the last task to
// finish.
type registryReporter struct {
	next sdmhttp.Reporter
	reg  *Registry
}

func (p *registryReporter) OnProgress(id string, downloaded, total int64, speed float64, timeLeft time.Duration) {
	p.next.OnProgress(id, downloaded, total, speed, timeLeft)
}

func (p *registryReporter) OnStatusChange(id string, status sdmhttp.Status) {
	p.next.OnStatusChange(id, status)
	if status == sdmhttp.StatusDownloading && p.reg.pausedAllSet() {
		// tasks that start or retry during a PauseAll are held too
		if task, ok := p.reg.Get(id); ok {
			task.Pause()
		}
	}
	if status.Terminal() {
		p.reg.checkDone()
	}
}

func (p *registryReporter) OnRemoved(id string) {
	p.next.OnRemoved(id)
}

func (p *registryReporter) OnError(id string, err error) {
	if er, ok := p.next.(sdmhttp.ErrorReporter); ok {
		er.OnError(id, err)
	}
}

type nopReporter struct{}

func (nopReporter) OnProgress(string, int64, int64, float64, time.Duration) {}
func (nopReporter) OnStatusChange(string, sdmhttp.Status)                  {}
func (nopReporter) OnRemoved(string)                                       {}
