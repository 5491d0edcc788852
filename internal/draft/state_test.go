package draft

import (
	stderrors "errors"
	"testing"
	"time"

	"applicant-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(status models.Status, fields models.Fields) *models.Application {
	return &models.Application{
		ID:        "app-1",
		OwnerID:   "owner-1",
		Status:    status,
		Fields:    fields,
		UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReduce_LoadedWithoutRecord(t *testing.T) {
	s := Reduce(Initial(), Loaded{})

	assert.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, models.StatusNotStarted, s.Status)
	assert.Empty(t, s.Fields)
	assert.False(t, s.Dirty)
	assert.Nil(t, s.Record)
}

func TestReduce_FirstEditStartsDraft(t *testing.T) {
	s := Reduce(Initial(), Loaded{})
	s = Reduce(s, Edited{Name: "full_name", Value: "Ada"})

	assert.Equal(t, models.StatusInProgress, s.Status)
	assert.Equal(t, "Ada", s.Fields["full_name"])
	assert.True(t, s.Dirty)
	assert.True(t, s.Pending["full_name"])
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := Reduce(Initial(), Loaded{App: record(models.StatusInProgress, models.Fields{"full_name": "Ada"})})
	after := Reduce(before, Edited{Name: "full_name", Value: "Bob"})

	assert.Equal(t, "Ada", before.Fields["full_name"])
	assert.False(t, before.Dirty)
	assert.Equal(t, "Bob", after.Fields["full_name"])
}

func TestReduce_EditIgnoredWhenLocked(t *testing.T) {
	s := Reduce(Initial(), Loaded{App: record(models.StatusSubmitted, models.Fields{"full_name": "Ada"})})
	next := Reduce(s, Edited{Name: "full_name", Value: "Mallory"})

	assert.Equal(t, "Ada", next.Fields["full_name"])
	assert.False(t, next.Dirty)
}

func TestReduce_SavedKeepsLaterEditsPending(t *testing.T) {
	s := Reduce(Initial(), Loaded{App: record(models.StatusInProgress, models.Fields{})})
	s = Reduce(s, Edited{Name: "full_name", Value: "Ada"})
	s = Reduce(s, Edited{Name: "cwid", Value: "1"})
	sent := models.Fields{"full_name": "Ada", "cwid": "1"}

	// cwid changes again while the flush is in flight.
	s = Reduce(s, Edited{Name: "cwid", Value: "12"})
	s = Reduce(s, Saved{App: record(models.StatusInProgress, models.Fields{"full_name": "Ada", "cwid": "1"}), Sent: sent})

	assert.Equal(t, "12", s.Fields["cwid"])
	assert.Equal(t, map[string]bool{"cwid": true}, s.Pending)
	assert.True(t, s.Dirty)
	assert.Equal(t, "1", s.Record.Fields["cwid"])
}

func TestReduce_SubmitLifecycle(t *testing.T) {
	s := Reduce(Initial(), Loaded{App: record(models.StatusInProgress, models.Fields{})})
	s = Reduce(s, Edited{Name: "full_name", Value: "Ada"})
	s = Reduce(s, SubmitStarted{})
	require.True(t, s.Submitting)
	assert.False(t, s.Editable())

	failed := Reduce(s, SubmitFinished{Err: stderrors.New("boom")})
	assert.False(t, failed.Submitting)
	assert.True(t, failed.Dirty)
	assert.Equal(t, "Ada", failed.Fields["full_name"])
	assert.EqualError(t, failed.Err, "boom")

	done := Reduce(s, SubmitFinished{App: record(models.StatusSubmitted, models.Fields{"full_name": "Ada"})})
	assert.False(t, done.Submitting)
	assert.False(t, done.Dirty)
	assert.Equal(t, models.StatusSubmitted, done.Status)
	assert.NoError(t, done.Err)

	abandoned := Reduce(s, SubmitFinished{})
	assert.False(t, abandoned.Submitting)
	assert.True(t, abandoned.Dirty)
}

func TestReduce_Discard(t *testing.T) {
	s := Reduce(Initial(), Loaded{App: record(models.StatusInProgress, models.Fields{"full_name": "Ada"})})
	s = Reduce(s, Edited{Name: "full_name", Value: "Bob"})
	s = Reduce(s, Discarded{})

	assert.Equal(t, "Ada", s.Fields["full_name"])
	assert.False(t, s.Dirty)

	fresh := Reduce(Reduce(Initial(), Loaded{}), Edited{Name: "cwid", Value: "9"})
	fresh = Reduce(fresh, Discarded{})
	assert.Equal(t, models.StatusNotStarted, fresh.Status)
	assert.Empty(t, fresh.Fields)
}

func TestReduce_LoadFailed(t *testing.T) {
	s := Reduce(Initial(), LoadFailed{Err: stderrors.New("offline")})
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.False(t, s.Editable())
}

func TestReduce_LateReplyNeverLowersStatus(t *testing.T) {
	s := Reduce(Initial(), Loaded{App: record(models.StatusInProgress, models.Fields{})})
	s = Reduce(s, Edited{Name: "full_name", Value: "Ada"})
	s = Reduce(s, SubmitStarted{})
	s = Reduce(s, SubmitFinished{App: record(models.StatusSubmitted, models.Fields{"full_name": "Ada"})})
	require.Equal(t, models.StatusSubmitted, s.Status)

	late := Reduce(s, Saved{
		App:  record(models.StatusInProgress, models.Fields{"full_name": "Ad"}),
		Sent: models.Fields{"full_name": "Ad"},
	})
	assert.Equal(t, models.StatusSubmitted, late.Status)
	assert.Equal(t, "Ada", late.Fields["full_name"])
	assert.Equal(t, models.StatusSubmitted, late.Record.Status)

	confirmed := Reduce(s, Transitioned{App: record(models.StatusConfirmed, models.Fields{"full_name": "Ada"})})
	require.Equal(t, models.StatusConfirmed, confirmed.Status)
	stale := Reduce(confirmed, Transitioned{App: record(models.StatusSubmitted, models.Fields{"full_name": "Ada"})})
	assert.Equal(t, models.StatusConfirmed, stale.Status)
}
