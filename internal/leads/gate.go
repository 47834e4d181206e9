package leads

import (
	"errors"
	"fmt"
)

const MinFollowupsToClose = 3

var (
	ErrFollowupsRequired = fmt.Errorf("at least %d follow-ups are required before a lead can be closed", MinFollowupsToClose)
	ErrInvalidStatus     = errors.New("invalid lead status")
)

// CheckTransition enforces the follow-up compliance rule: moving a lead into
// closed needs MinFollowupsToClose recorded follow-ups or an approved closure
// exception. Every other transition is allowed.
func CheckTransition(current Status, followupCount int, to Status, hasApprovedException bool) error {
	if _, ok := ParseStatus(string(to)); !ok {
		return ErrInvalidStatus
	}
	if to != StatusClosed || current == StatusClosed {
		return nil
	}
	if followupCount >= MinFollowupsToClose || hasApprovedException {
		return nil
	}
	return ErrFollowupsRequired
}

// FollowupsRemaining reports how many more follow-ups unlock closing.
func FollowupsRemaining(followupCount int) int {
	if followupCount >= MinFollowupsToClose {
		return 0
	}
	return MinFollowupsToClose - followupCount
}
