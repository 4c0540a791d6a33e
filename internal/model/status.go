package model

// Backup job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// jobTransitions lists every legal status change of a backup job.
var jobTransitions = map[string][]string{
	StatusPending: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition leaves status.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether a cancel request is legal in status.
func IsCancellable(status string) bool {
	return status == StatusPending || status == StatusRunning
}

// AllStatuses returns every backup job status.
func AllStatuses() []string {
	return []string{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
}
