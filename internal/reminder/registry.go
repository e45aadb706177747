package reminder

import "sync"

// JobKind discriminates the timer mechanism backing a registry entry.
type JobKind int

const (
	JobRecurring JobKind = iota
	JobOneShot
)

type job struct {
	kind   JobKind
	cancel func()
}

// Registry maps reminder ids to live, cancellable timer handles. It holds
// no business meaning beyond "a timer is armed for this id" and is pure
// process memory: empty on start, fully rebuilt by Scheduler.LoadAll.
//
// All mutations go through the mutex; this is the serialization point for
// concurrent commands racing on the same id.
type Registry struct {
	mu   sync.Mutex
	jobs map[int64]job
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[int64]job{}}
}

// Arm stores a new timer handle for id. It returns ErrAlreadyArmed if an
// entry exists; callers must Disarm first.
func (r *Registry) Arm(id int64, kind JobKind, cancel func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return ErrAlreadyArmed
	}
	r.jobs[id] = job{kind: kind, cancel: cancel}
	return nil
}

// Disarm cancels and removes the timer for id if present. Calling it for
// an absent id is a no-op returning false.
func (r *Registry) Disarm(id int64) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

// Kind reports the timer mechanism armed for id.
func (r *Registry) Kind(id int64) (JobKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j.kind, ok
}

// Count returns the number of currently armed timers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// DisarmAll cancels every armed timer. Used on shutdown.
func (r *Registry) DisarmAll() {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = map[int64]job{}
	r.mu.Unlock()

	for _, j := range jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
}
