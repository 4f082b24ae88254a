// Package observe records per-step audit trails for pipeline runs and
// streams them to subscribers. The recorder is shared by all
// concurrent pipelines and serializes its own updates.
package observe

import (
	"sync"

	"mathforge/internal/logger"
	"mathforge/internal/state"
)

// Event is one item in a job's stream: either a step record or the
// terminal status that ends the stream.
type Event struct {
	JobID    string            `json:"job_id"`
	Step     *state.StepRecord `json:"step,omitempty"`
	Terminal bool              `json:"terminal"`
	Status   state.Status      `json:"status,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// subBuffer bounds per-subscriber channels; a stalled consumer loses
// events rather than blocking the pipeline.
const subBuffer = 128

type Recorder struct {
	mu       sync.Mutex
	steps    map[string][]state.StepRecord
	subs     map[string][]chan Event
	terminal map[string]Event
}

func NewRecorder() *Recorder {
	return &Recorder{
		steps:    make(map[string][]state.StepRecord),
		subs:     make(map[string][]chan Event),
		terminal: make(map[string]Event),
	}
}

// Record appends a step to the job's audit trail and fans it out to
// subscribers. Steps are never mutated or removed afterwards.
func (r *Recorder) Record(jobID string, step state.StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps[jobID] = append(r.steps[jobID], step)
	ev := Event{JobID: jobID, Step: &step}
	for _, ch := range r.subs[jobID] {
		r.send(ch, ev)
	}
}

// Finish marks the job terminal, closing every subscriber stream after
// the terminal event. Further Record calls for the job are ignored by
// subscribers but still land in the audit trail.
func (r *Recorder) Finish(jobID string, status state.Status, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{JobID: jobID, Terminal: true, Status: status, Reason: reason}
	r.terminal[jobID] = ev
	for _, ch := range r.subs[jobID] {
		r.send(ch, ev)
		close(ch)
	}
	delete(r.subs, jobID)
}

// Subscribe returns a stream of the job's events. Already-recorded
// steps are replayed first; the channel closes after the terminal
// event. A finished job yields its full history immediately.
func (r *Recorder) Subscribe(jobID string) <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, subBuffer)
	for i := range r.steps[jobID] {
		step := r.steps[jobID][i]
		r.send(ch, Event{JobID: jobID, Step: &step})
	}
	if term, done := r.terminal[jobID]; done {
		r.send(ch, term)
		close(ch)
		return ch
	}
	r.subs[jobID] = append(r.subs[jobID], ch)
	return ch
}

// Steps returns a copy of the job's audit trail so far.
func (r *Recorder) Steps(jobID string) []state.StepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]state.StepRecord, len(r.steps[jobID]))
	copy(out, r.steps[jobID])
	return out
}

func (r *Recorder) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		logger.Log.Printf("[Observe] dropped event for slow subscriber (job %s)", ev.JobID)
	}
}
