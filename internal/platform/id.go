package platform

import "github.com/google/uuid"

// NewID returns a random UUID for jobs and log entries.
func NewID() string {
	return uuid.New().String()
}
