package vacation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/generic"
)

func TestNext_AllowedTransitions(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
		to     Status
	}{
		{StatusRequested, TransitionLeaderApprove, StatusLeaderApproved},
		{StatusRequested, TransitionLeaderReject, StatusLeaderRejected},
		{StatusLeaderApproved, TransitionHRApprove, StatusHRApproved},
		{StatusLeaderApproved, TransitionHRReject, StatusHRRejected},
		{StatusHRApproved, TransitionSchedule, StatusScheduled},
		{StatusScheduled, TransitionSchedule, StatusScheduled},
		{StatusScheduled, TransitionEnjoy, StatusEnjoyed},
		{StatusRequested, TransitionCancel, StatusCancelled},
		{StatusLeaderApproved, TransitionCancel, StatusCancelled},
		{StatusHRApproved, TransitionCancel, StatusCancelled},
		{StatusScheduled, TransitionCancel, StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			to, err := Next(tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestNext_RejectsEverythingElse(t *testing.T) {
	actions := []Action{
		TransitionLeaderApprove, TransitionLeaderReject, TransitionHRApprove, TransitionHRReject,
		TransitionSchedule, TransitionEnjoy, TransitionCancel,
	}
	allowed := 0
	for _, from := range AllStatuses {
		for _, action := range actions {
			if CanTransition(from, action) {
				allowed++
				continue
			}
			_, err := Next(from, action)
			assert.ErrorIs(t, err, generic.ErrIllegalTransition, "%s/%s", from, action)
			assert.ErrorIs(t, err, generic.ErrBusinessRule)
		}
	}
	assert.Equal(t, len(transitions), allowed)
}

func TestStatus_Classification(t *testing.T) {
	for _, s := range AllStatuses {
		if s.Terminal() {
			for _, a := range []Action{TransitionCancel, TransitionSchedule, TransitionEnjoy} {
				assert.False(t, CanTransition(s, a), "terminal %s accepts %s", s, a)
			}
		}
	}
	assert.True(t, StatusHRApproved.Reserving())
	assert.True(t, StatusScheduled.Reserving())
	assert.False(t, StatusLeaderApproved.Reserving())
	assert.False(t, Status("bogus").Active())
}
