package turnlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireRejectsSecondHolder(t *testing.T) {
	locks := New()

	assert.NoError(t, locks.TryAcquire("conv-1"))
	assert.ErrorIs(t, locks.TryAcquire("conv-1"), ErrTurnInProgress)

	// A different key is independent.
	assert.NoError(t, locks.TryAcquire("conv-2"))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	locks := New()

	assert.NoError(t, locks.TryAcquire("conv-1"))
	locks.Release("conv-1")
	assert.NoError(t, locks.TryAcquire("conv-1"))
}

func TestReleaseUnheldKeyIsHarmless(t *testing.T) {
	locks := New()

	locks.Release("never-held")
	assert.NoError(t, locks.TryAcquire("never-held"))
}
