package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusPending))
	assert.True(t, CanTransition(StatusPending, StatusSucceeded))
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.True(t, CanTransition(StatusPending, StatusTimeout))
}

func TestCanTransition_LateCallbackAfterTimeout(t *testing.T) {
	assert.True(t, CanTransition(StatusTimeout, StatusSucceeded))
	assert.True(t, CanTransition(StatusTimeout, StatusFailed))
}

func TestCanTransition_TerminalStatesAreSticky(t *testing.T) {
	for _, terminalStatus := range []Status{StatusFailed} {
		assert.False(t, CanTransition(terminalStatus, StatusSucceeded))
		assert.False(t, CanTransition(terminalStatus, StatusPending))
	}

	// StatusSucceeded is terminal except for the explicit REVERSAL edge.
	assert.False(t, CanTransition(StatusSucceeded, StatusPending))
	assert.False(t, CanTransition(StatusSucceeded, StatusFailed))
	assert.True(t, CanTransition(StatusSucceeded, StatusReversed))

	assert.False(t, CanTransition(StatusReversed, StatusSucceeded))
}

func TestCanTransition_RejectsInvalidEdges(t *testing.T) {
	assert.False(t, CanTransition(StatusCreated, StatusSucceeded), "a request must pass through PENDING before settling")
	assert.False(t, CanTransition(StatusCreated, StatusTimeout))
}
