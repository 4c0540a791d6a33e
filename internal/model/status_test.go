package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, "pending", StatusPending)
	assert.Equal(t, "running", StatusRunning)
	assert.Equal(t, "completed", StatusCompleted)
	assert.Equal(t, "failed", StatusFailed)
	assert.Equal(t, "cancelled", StatusCancelled)
}

func TestCanTransition_OnlyLifecycleEdges(t *testing.T) {
	allowed := map[[2]string]bool{
		{StatusPending, StatusRunning}:   true,
		{StatusPending, StatusFailed}:    true,
		{StatusPending, StatusCancelled}: true,
		{StatusRunning, StatusCompleted}: true,
		{StatusRunning, StatusFailed}:    true,
		{StatusRunning, StatusCancelled}: true,
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			assert.Equal(t, allowed[[2]string{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusRunning))
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusCancelled))
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range AllStatuses() {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range AllStatuses() {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsCancellable(t *testing.T) {
	assert.True(t, IsCancellable(StatusPending))
	assert.True(t, IsCancellable(StatusRunning))
	assert.False(t, IsCancellable(StatusCompleted))
	assert.False(t, IsCancellable(StatusFailed))
	assert.False(t, IsCancellable(StatusCancelled))
}
