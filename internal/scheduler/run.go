package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdmhttp "github.com/tanq16/sdm/internal/downloaders/http"
)

// Job is one requested download. A zero At starts it immediately.
type Job struct {
	URL        string
	OutputPath string
	At         time.Time
}

// Run adds every job to reg, starts or schedules it, and waits until all
// tasks are done or ctx ends. On ctx end every unfinished task is cancelled.
// Jobs that could not be created or ended Failed are returned joined.
func Run(ctx context.Context, reg *Registry, jobs []Job, onAdded func(Job, *sdmhttp.Task)) error {
	var errs []error
	var added []Job
	var ids []string
	// everything is registered before anything starts so AllDone can't
	// fire between two jobs
	for _, job := range jobs {
		task, err := reg.Add(job.URL, job.OutputPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.URL, err))
			continue
		}
		if onAdded != nil {
			onAdded(job, task)
		}
		added = append(added, job)
		ids = append(ids, task.ID())
	}
	for i, id := range ids {
		var err error
		if added[i].At.IsZero() {
			err = reg.Start(id)
		} else {
			err = reg.Schedule(id, added[i].At)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(ids) == 0 {
		return errors.Join(errs...)
	}

	select {
	case <-reg.AllDone():
	case <-ctx.Done():
		if err := reg.CancelAll(); err != nil {
			errs = append(errs, err)
		}
		reg.Wait()
		return errors.Join(append(errs, ctx.Err())...)
	}
	reg.Wait()

	for _, id := range ids {
		task, ok := reg.Get(id)
		if !ok {
			continue
		}
		if task.Status() == sdmhttp.StatusFailed {
			errs = append(errs, fmt.Errorf("%s: %w", task.URL(), task.Err()))
		}
	}
	return errors.Join(errs...)
}
