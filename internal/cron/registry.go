package cron

import (
	"context"
	"fmt"
	"slices"
)

// Job is one step of a sweep cycle. Jobs run sequentially in registration
// order, so maturation is registered before expiration and reconciliation.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is an ordered set of jobs keyed by name.
type Registry struct {
	jobs []Job
}

// NewRegistry registers jobs in order. Nil jobs are ignored and a later job
// replaces an earlier one with the same name.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if i := r.index(job.Name()); i >= 0 {
		r.jobs[i] = job
		return
	}
	r.jobs = append(r.jobs, job)
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.jobs, func(j Job) bool { return j.Name() == name })
}

// Jobs returns a copy of the jobs in run order.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Only returns a registry restricted to names, keeping run order. Unknown
// names are an error so a typo never silently skips work.
func (r *Registry) Only(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return NewRegistry(r.jobs...), nil
	}
	for _, name := range names {
		if r.index(name) < 0 {
			return nil, fmt.Errorf("unknown cron job %q (have %v)", name, r.Names())
		}
	}
	subset := &Registry{}
	for _, job := range r.jobs {
		if slices.Contains(names, job.Name()) {
			subset.jobs = append(subset.jobs, job)
		}
	}
	return subset, nil
}
