package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLocks_SecondAcquireConflicts(t *testing.T) {
	l := newJobLocks()

	release, err := l.acquire("job-1", "restore")
	require.NoError(t, err)

	_, err = l.acquire("job-1", "restore")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "busy with restore")

	release()
	release2, err := l.acquire("job-1", "download")
	require.NoError(t, err)
	release2()
}

func TestJobLocks_DifferentJobsIndependent(t *testing.T) {
	l := newJobLocks()

	r1, err := l.acquire("job-1", "test")
	require.NoError(t, err)
	r2, err := l.acquire("job-2", "test")
	require.NoError(t, err)
	r1()
	r2()
}

func TestJobLocks_ReleaseIsIdempotent(t *testing.T) {
	l := newJobLocks()

	r1, err := l.acquire("job-1", "cancel")
	require.NoError(t, err)
	r1()

	r2, err := l.acquire("job-1", "delete")
	require.NoError(t, err)
	// A stale release from the first holder must not free the second.
	r1()
	_, err = l.acquire("job-1", "restore")
	assert.True(t, errors.Is(err, ErrConflict))
	r2()
}

func TestJobLocks_ConcurrentAcquireOnlyOneWins(t *testing.T) {
	l := newJobLocks()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.acquire("job-1", "restore"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
