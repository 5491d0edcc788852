// Package lifecycle holds the application status state machine. It does no
// I/O; the store and the draft engine both defer to it.
package lifecycle

import (
	"errors"
	"fmt"

	"applicant-portal/internal/models"
)

// Event names a transition request.
type Event string

const (
	EventFirstEdit         Event = "first_edit"
	EventSubmit            Event = "submit"
	EventAccept            Event = "accept"
	EventWaitlist          Event = "waitlist"
	EventConfirmAttendance Event = "confirm_attendance"
	EventDeclineAttendance Event = "decline_attendance"
)

var ErrInvalidTransition = errors.New("INVALID_TRANSITION")

type edge struct {
	from  models.Status
	event Event
}

var transitions = map[edge]models.Status{
	{models.StatusNotStarted, EventFirstEdit}:       models.StatusInProgress,
	{models.StatusInProgress, EventSubmit}:          models.StatusSubmitted,
	{models.StatusSubmitted, EventAccept}:           models.StatusAccepted,
	{models.StatusSubmitted, EventWaitlist}:         models.StatusWaitlisted,
	{models.StatusAccepted, EventConfirmAttendance}: models.StatusConfirmed,
	{models.StatusAccepted, EventDeclineAttendance}: models.StatusWaitlisted,
}

// Transition returns the status reached by applying event to from.
func Transition(from models.Status, event Event) (models.Status, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Source returns the only status from which event is legal.
func Source(event Event) (models.Status, bool) {
	for e := range transitions {
		if e.event == event {
			return e.from, true
		}
	}
	return "", false
}

// Target returns the status event leads to.
func Target(event Event) (models.Status, bool) {
	for e, to := range transitions {
		if e.event == event {
			return to, true
		}
	}
	return "", false
}

// SoleEntry reports whether event is the only edge into its target, so that
// finding a record at the target proves the event already happened.
func SoleEntry(event Event) bool {
	to, ok := Target(event)
	if !ok {
		return false
	}
	n := 0
	for _, t := range transitions {
		if t == to {
			n++
		}
	}
	return n == 1
}

// IsAuthorityEvent reports whether event belongs to the reviewing authority
// rather than the applicant.
func IsAuthorityEvent(event Event) bool {
	return event == EventAccept || event == EventWaitlist
}

// Rank places a status on the partial order
// not_started < in_progress < submitted <= {accepted, waitlisted}, accepted <= confirmed.
// accepted and waitlisted share a rank and are not comparable to each other.
func Rank(s models.Status) int {
	switch s {
	case models.StatusNotStarted:
		return 0
	case models.StatusInProgress:
		return 1
	case models.StatusSubmitted:
		return 2
	case models.StatusAccepted, models.StatusWaitlisted:
		return 3
	case models.StatusConfirmed:
		return 4
	default:
		return -1
	}
}

// LockedStatuses are the statuses an applicant write can no longer change.
var LockedStatuses = []models.Status{
	models.StatusSubmitted,
	models.StatusAccepted,
	models.StatusWaitlisted,
	models.StatusConfirmed,
}

func IsLocked(s models.Status) bool {
	for _, l := range LockedStatuses {
		if s == l {
			return true
		}
	}
	return false
}

// ParseIntent accepts the two statuses an applicant payload may request.
func ParseIntent(s string) (models.Status, error) {
	switch models.Status(s) {
	case models.StatusInProgress, models.StatusSubmitted:
		return models.Status(s), nil
	default:
		return "", fmt.Errorf("%w: status intent %q not allowed", ErrInvalidTransition, s)
	}
}

// Ratchet is the status merge rule for applicant writes: a locked stored
// status always wins, otherwise the intent is taken.
func Ratchet(stored, intent models.Status) models.Status {
	if IsLocked(stored) {
		return stored
	}
	return intent
}
