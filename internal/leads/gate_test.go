package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransitionBlocksCloseBelowThreeFollowups(t *testing.T) {
	err := CheckTransition(StatusHighInterest, 2, StatusClosed, false)
	require.ErrorIs(t, err, ErrFollowupsRequired)
	assert.Contains(t, err.Error(), "at least 3 follow-ups")

	assert.NoError(t, CheckTransition(StatusHighInterest, 3, StatusClosed, false))
}

func TestCheckTransitionApprovedExceptionPermitsClose(t *testing.T) {
	assert.NoError(t, CheckTransition(StatusNew, 0, StatusClosed, true))
}

func TestCheckTransitionOtherTargetsUnrestricted(t *testing.T) {
	for _, to := range Statuses {
		if to == StatusClosed {
			continue
		}
		assert.NoError(t, CheckTransition(StatusNew, 0, to, false), "to %s", to)
	}
	assert.NoError(t, CheckTransition(StatusClosed, 0, StatusClosed, false))
}

func TestCheckTransitionRejectsUnknownStatus(t *testing.T) {
	assert.ErrorIs(t, CheckTransition(StatusNew, 5, Status("archived"), false), ErrInvalidStatus)
}

func TestFollowupsRemaining(t *testing.T) {
	assert.Equal(t, 3, FollowupsRemaining(0))
	assert.Equal(t, 1, FollowupsRemaining(2))
	assert.Equal(t, 0, FollowupsRemaining(3))
	assert.Equal(t, 0, FollowupsRemaining(7))
}
