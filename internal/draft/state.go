// Package draft keeps the client's copy of an application in step with the
// server. All state changes go through Reduce.
package draft

import (
	"applicant-portal/internal/application/lifecycle"
	"applicant-portal/internal/models"
)

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// State is the whole client-side view of one application.
type State struct {
	Phase  Phase
	Status models.Status
	Fields models.Fields
	// Pending names fields edited locally and not yet acknowledged by the server.
	Pending    map[string]bool
	Dirty      bool
	Submitting bool
	Err        error

	// Record is the last server snapshot; Discard reverts to it.
	Record *models.Application
}

// Editable reports whether local edits are accepted.
func (s State) Editable() bool {
	return s.Phase == PhaseReady && !s.Submitting && !lifecycle.IsLocked(s.Status)
}

// Action is one input to Reduce.
type Action interface {
	action()
}

type (
	// Loaded carries the record read at mount; nil means none exists yet.
	Loaded     struct{ App *models.Application }
	LoadFailed struct{ Err error }
	Edited     struct {
		Name  string
		Value any
	}
	// Saved acknowledges an autosave flush of Sent.
	Saved struct {
		App  *models.Application
		Sent models.Fields
	}
	SaveFailed    struct{ Err error }
	SubmitStarted struct{}
	// SubmitFinished ends an in-flight submission. Both fields nil means the
	// request was abandoned.
	SubmitFinished struct {
		App *models.Application
		Err error
	}
	// Rejected records an error that never reached the server.
	Rejected     struct{ Err error }
	Transitioned struct{ App *models.Application }
	Discarded    struct{}
)

func (Loaded) action()         {}
func (LoadFailed) action()     {}
func (Edited) action()         {}
func (Saved) action()          {}
func (SaveFailed) action()     {}
func (SubmitStarted) action()  {}
func (SubmitFinished) action() {}
func (Rejected) action()       {}
func (Transitioned) action()   {}
func (Discarded) action()      {}

// Initial is the state before the mount read completes.
func Initial() State {
	return State{
		Phase:   PhaseLoading,
		Status:  models.StatusNotStarted,
		Fields:  models.Fields{},
		Pending: map[string]bool{},
	}
}

// Reduce returns the state after applying a. It never mutates s.
func Reduce(s State, a Action) State {
	next := s.clone()

	switch a := a.(type) {
	case Loaded:
		next.Phase = PhaseReady
		next.Err = nil
		if a.App == nil {
			next.Status = models.StatusNotStarted
			next.Fields = models.Fields{}
			next.Record = nil
		} else {
			next.adopt(a.App)
		}
		next.Pending = map[string]bool{}

	case LoadFailed:
		next.Phase = PhaseFailed
		next.Err = a.Err

	case Edited:
		if !s.Editable() {
			return s
		}
		next.Fields[a.Name] = a.Value
		next.Pending[a.Name] = true
		if to, err := lifecycle.Transition(s.Status, lifecycle.EventFirstEdit); err == nil {
			next.Status = to
		}
		next.Err = nil

	case Saved:
		// A flush reply can land after a submit; the local lock wins.
		if lifecycle.Ratchet(s.Status, a.App.Status) != a.App.Status {
			next.Err = nil
			break
		}
		local := next.Fields
		next.adopt(a.App)
		// Edits made while the flush was in flight stay pending.
		for name := range s.Pending {
			if sent, ok := a.Sent[name]; ok && sent == local[name] {
				delete(next.Pending, name)
				continue
			}
			next.Fields[name] = local[name]
		}
		next.Err = nil

	case SaveFailed:
		next.Err = a.Err

	case SubmitStarted:
		next.Submitting = true
		next.Err = nil

	case SubmitFinished:
		next.Submitting = false
		switch {
		case a.Err != nil:
			next.Err = a.Err
		case a.App != nil:
			next.adopt(a.App)
			next.Pending = map[string]bool{}
			next.Err = nil
		}

	case Rejected:
		next.Err = a.Err

	case Transitioned:
		if lifecycle.Rank(a.App.Status) < lifecycle.Rank(s.Status) {
			break
		}
		local := next.Fields
		next.adopt(a.App)
		for name := range s.Pending {
			next.Fields[name] = local[name]
		}
		next.Err = nil

	case Discarded:
		if s.Record != nil {
			next.adopt(s.Record)
		} else {
			next.Status = models.StatusNotStarted
			next.Fields = models.Fields{}
		}
		next.Pending = map[string]bool{}
		next.Err = nil
	}

	next.Dirty = len(next.Pending) > 0
	return next
}

func (s *State) adopt(app *models.Application) {
	s.Record = app.Clone()
	s.Status = app.Status
	s.Fields = app.Fields.Clone()
}

func (s State) clone() State {
	out := s
	out.Fields = s.Fields.Clone()
	out.Pending = make(map[string]bool, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	out.Record = s.Record.Clone()
	return out
}
