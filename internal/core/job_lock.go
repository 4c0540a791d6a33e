package core

import (
	"fmt"
	"sync"
)

// jobLocks serializes per-job commands. A second command on a job that is
// already busy fails with ErrConflict instead of queueing.
type jobLocks struct {
	mu       sync.Mutex
	inflight map[string]string
}

func newJobLocks() *jobLocks {
	return &jobLocks{inflight: make(map[string]string)}
}

func (l *jobLocks) acquire(jobID, action string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, busy := l.inflight[jobID]; busy {
		return nil, fmt.Errorf("%w: backup job %s is busy with %s", ErrConflict, jobID, current)
	}
	l.inflight[jobID] = action

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.inflight, jobID)
			l.mu.Unlock()
		})
	}, nil
}
