package draft

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/application/lifecycle"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/models"
)

var (
	ErrSubmitInFlight = stderrors.New("a submission is already in flight")
	ErrNotLoaded      = stderrors.New("draft is not loaded")
	ErrReadOnly       = stderrors.New("application can no longer be edited")
)

// Backend is the server side of the draft. The owner is implied by the
// credential the backend was built with.
type Backend interface {
	GetApplication(ctx context.Context) (*models.Application, error)
	SaveApplication(ctx context.Context, fields models.Fields) (*models.Application, error)
	SubmitApplication(ctx context.Context, fields models.Fields, consentGiven bool) (*models.Application, error)
	ConfirmAttendance(ctx context.Context) (*models.Application, error)
	DeclineAttendance(ctx context.Context) (*models.Application, error)
}

type LeaveDecision int

const (
	LeaveAllowed LeaveDecision = iota
	// LeaveBlocked asks the caller to confirm before throwing edits away.
	LeaveBlocked
)

func (d LeaveDecision) String() string {
	if d == LeaveBlocked {
		return "blocked"
	}
	return "allowed"
}

type Options struct {
	// AutosaveInterval enables the periodic flush when positive.
	AutosaveInterval time.Duration
	Logger           logger.Logger
}

// Engine owns one draft. It is safe for concurrent use.
type Engine struct {
	backend Backend
	gate    *gate.Gate
	opts    Options
	logger  logger.Logger

	mu       sync.Mutex
	state    State
	loadOnce sync.Once
	loadErr  error

	flushMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewEngine(backend Backend, g *gate.Gate, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{
		backend: backend,
		gate:    g,
		opts:    opts,
		logger:  log.WithFields(map[string]interface{}{"component": "draft"}),
		state:   Initial(),
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

func (e *Engine) dispatch(a Action) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Reduce(e.state, a)
	return e.state
}

// Load performs the single mount read. Later calls return the outcome of the
// first one without touching the backend.
func (e *Engine) Load(ctx context.Context) (State, error) {
	e.loadOnce.Do(func() {
		app, err := e.backend.GetApplication(ctx)
		switch {
		case errors.IsCode(err, errors.ErrCodeNotFound):
			e.dispatch(Loaded{})
		case err != nil:
			e.loadErr = err
			e.dispatch(LoadFailed{Err: err})
			e.logger.Warn("draft load failed", map[string]interface{}{"error": err})
		default:
			e.dispatch(Loaded{App: app})
		}
	})
	return e.Snapshot(), e.loadErr
}

// Edit merges one value into the local draft.
func (e *Engine) Edit(name string, value any) error {
	if name == "" {
		return errors.NewInvalidInputError("field name must not be empty")
	}
	if _, err := models.NormalizeFields(map[string]any{name: value}); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state.Phase != PhaseReady:
		return ErrNotLoaded
	case e.state.Submitting:
		return ErrSubmitInFlight
	case lifecycle.IsLocked(e.state.Status):
		return ErrReadOnly
	}
	e.state = Reduce(e.state, Edited{Name: name, Value: value})
	return nil
}

// Flush sends pending fields as a partial save. It is a no-op when the draft
// is clean, submitting or locked, or when another flush is running.
func (e *Engine) Flush(ctx context.Context) error {
	if !e.flushMu.TryLock() {
		return nil
	}
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if !e.state.Dirty || !e.state.Editable() {
		e.mu.Unlock()
		return nil
	}
	sent := make(models.Fields, len(e.state.Pending))
	for name := range e.state.Pending {
		sent[name] = e.state.Fields[name]
	}
	e.mu.Unlock()

	app, err := e.backend.SaveApplication(ctx, sent)
	if err != nil {
		e.dispatch(SaveFailed{Err: err})
		e.logger.Warn("draft flush failed", map[string]interface{}{
			"fields": sent.Keys(),
			"error":  err,
		})
		return err
	}
	e.dispatch(Saved{App: app, Sent: sent})
	e.logger.Debug("draft flushed", map[string]interface{}{"fields": sent.Keys(), "status": string(app.Status)})
	return nil
}

// Submit checks the draft locally and sends it with a submitted intent. On
// success the draft is replaced by the returned record; on failure it is
// kept as it was.
func (e *Engine) Submit(ctx context.Context) (app *models.Application, err error) {
	e.mu.Lock()
	switch {
	case e.state.Submitting:
		e.mu.Unlock()
		return nil, ErrSubmitInFlight
	case e.state.Phase != PhaseReady:
		e.mu.Unlock()
		return nil, ErrNotLoaded
	}

	fields := e.state.Fields.Clone()
	consent := e.consent(fields)
	if result := e.gate.Check(fields, consent); !result.Valid {
		verr := errors.NewValidationFailedError(result.Reason(), result.Details())
		e.state = Reduce(e.state, Rejected{Err: verr})
		e.mu.Unlock()
		return nil, verr
	}
	e.state = Reduce(e.state, SubmitStarted{})
	e.mu.Unlock()

	defer func() {
		e.dispatch(SubmitFinished{App: app, Err: err})
	}()

	// A flush already on the wire lands before the submission is sent.
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	app, err = e.backend.SubmitApplication(ctx, fields, consent)
	if err != nil {
		e.logger.Warn("submission failed", map[string]interface{}{"error": err})
		return nil, err
	}
	e.logger.Info("application submitted", map[string]interface{}{
		"applicationId": app.ID,
		"status":        string(app.Status),
	})
	return app, nil
}

func (e *Engine) Confirm(ctx context.Context) (*models.Application, error) {
	return e.transition(ctx, e.backend.ConfirmAttendance)
}

func (e *Engine) Decline(ctx context.Context) (*models.Application, error) {
	return e.transition(ctx, e.backend.DeclineAttendance)
}

func (e *Engine) transition(ctx context.Context, call func(context.Context) (*models.Application, error)) (*models.Application, error) {
	e.mu.Lock()
	ready, submitting := e.state.Phase == PhaseReady, e.state.Submitting
	e.mu.Unlock()
	if !ready {
		return nil, ErrNotLoaded
	}
	if submitting {
		return nil, ErrSubmitInFlight
	}

	app, err := call(ctx)
	if err != nil {
		e.dispatch(Rejected{Err: err})
		return nil, err
	}
	e.dispatch(Transitioned{App: app})
	return app, nil
}

// Leave decides whether the edit view may be left without confirmation.
func (e *Engine) Leave() LeaveDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Dirty && e.state.Status == models.StatusInProgress {
		return LeaveBlocked
	}
	return LeaveAllowed
}

// Discard drops local edits and reverts to the last server snapshot.
func (e *Engine) Discard() State {
	return e.dispatch(Discarded{})
}

// Start runs the autosave loop until ctx ends or Close is called. It does
// nothing when autosave is disabled. Call it once.
func (e *Engine) Start(ctx context.Context) {
	if e.opts.AutosaveInterval <= 0 || e.stop != nil {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.opts.AutosaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				_ = e.Flush(ctx)
			}
		}
	}()
}

// Close stops the autosave loop and waits for it to exit.
func (e *Engine) Close() {
	if e.stop == nil {
		return
	}
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

func (e *Engine) consent(fields models.Fields) bool {
	if e.state.Record != nil && e.state.Record.ConsentGiven {
		if _, edited := fields[e.gate.Catalog().ConsentField]; !edited {
			return true
		}
	}
	v, _ := fields[e.gate.Catalog().ConsentField].(bool)
	return v
}

// ConsentField names the catalog checkbox that carries consent.
func (e *Engine) ConsentField() string {
	return e.gate.Catalog().ConsentField
}
