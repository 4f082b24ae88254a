package pipeline

import (
	"context"
	"sync"

	"mathforge/internal/logger"
	"mathforge/internal/observe"
	"mathforge/internal/state"
)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	final *state.State // set once, when the run finishes
	req   state.Request
}

// Manager launches pipeline runs and tracks them by job id.
// Independent jobs run fully in parallel sharing only the cache and
// the recorder.
type Manager struct {
	engine   *Engine
	recorder *observe.Recorder

	mu   sync.Mutex
	jobs map[string]*job
}

func NewManager(engine *Engine, rec *observe.Recorder) *Manager {
	return &Manager{engine: engine, recorder: rec, jobs: make(map[string]*job)}
}

// Start launches a run and returns its job id immediately.
func (m *Manager) Start(ctx context.Context, req state.Request, regenerate bool) string {
	st := state.New(req)
	runCtx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, done: make(chan struct{}), req: req}

	m.mu.Lock()
	m.jobs[st.JobID] = j
	m.mu.Unlock()

	logger.Log.Printf("[Manager] job %s accepted", st.JobID)
	go func() {
		defer cancel()
		final := m.engine.Run(runCtx, st, regenerate)
		j.mu.Lock()
		j.final = final
		j.mu.Unlock()
		close(j.done)
	}()
	return st.JobID
}

// Stream returns the job's event stream: prior steps replayed, live
// steps as they happen, closed after the terminal event.
func (m *Manager) Stream(jobID string) (<-chan observe.Event, error) {
	if _, err := m.lookup(jobID); err != nil {
		return nil, err
	}
	return m.recorder.Subscribe(jobID), nil
}

// Result returns the job's state snapshot. While the run is in flight
// it reflects the steps recorded so far with status running; after the
// terminal event it is the final snapshot.
func (m *Manager) Result(jobID string) (state.State, error) {
	j, err := m.lookup(jobID)
	if err != nil {
		return state.State{}, err
	}

	j.mu.Lock()
	final := j.final
	j.mu.Unlock()
	if final != nil {
		return final.Snapshot(), nil
	}

	return state.State{
		JobID:   jobID,
		Status:  state.StatusRunning,
		Request: j.req,
		Steps:   m.recorder.Steps(jobID),
	}, nil
}

// Wait blocks until the job reaches a terminal state and returns it.
func (m *Manager) Wait(jobID string) (state.State, error) {
	j, err := m.lookup(jobID)
	if err != nil {
		return state.State{}, err
	}
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.final.Snapshot(), nil
}

// Cancel requests cooperative cancellation. The run still terminates
// through the engine, ending failed with reason cancelled.
func (m *Manager) Cancel(jobID string) error {
	j, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	select {
	case <-j.done:
		return ErrAlreadyFinished
	default:
	}
	logger.Log.Printf("[Manager] job %s cancel requested", jobID)
	j.cancel()
	return nil
}

func (m *Manager) lookup(jobID string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	return j, nil
}
