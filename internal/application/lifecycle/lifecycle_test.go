package lifecycle

import (
	"errors"
	"testing"

	"applicant-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from  models.Status
		event Event
		to    models.Status
	}{
		{models.StatusNotStarted, EventFirstEdit, models.StatusInProgress},
		{models.StatusInProgress, EventSubmit, models.StatusSubmitted},
		{models.StatusSubmitted, EventAccept, models.StatusAccepted},
		{models.StatusSubmitted, EventWaitlist, models.StatusWaitlisted},
		{models.StatusAccepted, EventConfirmAttendance, models.StatusConfirmed},
		{models.StatusAccepted, EventDeclineAttendance, models.StatusWaitlisted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, err := Transition(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestTransition_RejectsEverythingElse(t *testing.T) {
	events := []Event{EventFirstEdit, EventSubmit, EventAccept, EventWaitlist, EventConfirmAttendance, EventDeclineAttendance}
	legal := 0
	for _, from := range models.AllStatuses {
		for _, ev := range events {
			to, err := Transition(from, ev)
			if err == nil {
				legal++
				continue
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, from, to, "rejected transition must not move the status")
		}
	}
	assert.Equal(t, 6, legal)
}

func TestTerminalStatesHaveNoApplicantExit(t *testing.T) {
	applicantEvents := []Event{EventFirstEdit, EventSubmit, EventConfirmAttendance, EventDeclineAttendance}
	for _, s := range []models.Status{models.StatusConfirmed, models.StatusWaitlisted} {
		for _, ev := range applicantEvents {
			_, err := Transition(s, ev)
			assert.Error(t, err, "%s via %s", s, ev)
		}
	}
}

func TestSoleEntry(t *testing.T) {
	assert.True(t, SoleEntry(EventConfirmAttendance))
	assert.True(t, SoleEntry(EventAccept))
	assert.True(t, SoleEntry(EventSubmit))
	// waitlisted is reached by the authority or by a decline
	assert.False(t, SoleEntry(EventDeclineAttendance))
	assert.False(t, SoleEntry(EventWaitlist))
	assert.False(t, SoleEntry(Event("bogus")))
}

func TestRatchet_LockedStatusWins(t *testing.T) {
	for _, stored := range LockedStatuses {
		for _, intent := range []models.Status{models.StatusInProgress, models.StatusSubmitted} {
			assert.Equal(t, stored, Ratchet(stored, intent))
		}
	}
	assert.Equal(t, models.StatusInProgress, Ratchet(models.StatusNotStarted, models.StatusInProgress))
	assert.Equal(t, models.StatusSubmitted, Ratchet(models.StatusInProgress, models.StatusSubmitted))
}

func TestRatchet_NeverMovesBackward(t *testing.T) {
	for _, stored := range models.AllStatuses {
		for _, intent := range []models.Status{models.StatusInProgress, models.StatusSubmitted} {
			got := Ratchet(stored, intent)
			assert.GreaterOrEqual(t, Rank(got), Rank(stored), "stored=%s intent=%s", stored, intent)
		}
	}
}

func TestParseIntent(t *testing.T) {
	s, err := ParseIntent("in_progress")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, s)

	s, err = ParseIntent("submitted")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, s)

	for _, bad := range []string{"accepted", "waitlisted", "confirmed", "not_started", ""} {
		_, err := ParseIntent(bad)
		assert.ErrorIs(t, err, ErrInvalidTransition, bad)
	}
}

func TestSourceAndTarget(t *testing.T) {
	from, ok := Source(EventConfirmAttendance)
	require.True(t, ok)
	assert.Equal(t, models.StatusAccepted, from)

	to, ok := Target(EventDeclineAttendance)
	require.True(t, ok)
	assert.Equal(t, models.StatusWaitlisted, to)

	_, ok = Source(Event("bogus"))
	assert.False(t, ok)
}
