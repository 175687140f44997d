// Package report records what happened on one connection: resource
// failures and task executions with timestamps. Events are buffered until
// Flush, which hands them to the configured writer. One reporter lives on
// each connection context frame.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventResourceFailed = "resource_failed"
	EventTaskExecution  = "task_execution"
)

// Event is one recorded occurrence.
type Event struct {
	ID      string    `yaml:"id" json:"id"`
	Type    string    `yaml:"type" json:"type"`
	Task    string    `yaml:"task" json:"task"`
	Server  string    `yaml:"server" json:"server"`
	Failed  bool      `yaml:"failed" json:"failed"`
	Message string    `yaml:"message,omitempty" json:"message,omitempty"`
	Start   time.Time `yaml:"start,omitempty" json:"start,omitempty"`
	End     time.Time `yaml:"end,omitempty" json:"end,omitempty"`
}

// Reporter buffers events for one server connection.
type Reporter struct {
	mu      sync.Mutex
	server  string
	events  []Event
	writer  Writer
	flushed int // index of first unflushed event
}

// New creates a reporter for the given server, flushing through w.
func New(server string, w Writer) *Reporter {
	return &Reporter{server: server, writer: w}
}

// ResourceFailed records that the server (as a resource) failed while
// running the named task.
func (r *Reporter) ResourceFailed(task, message string) {
	r.append(Event{
		Type:    EventResourceFailed,
		Task:    task,
		Failed:  true,
		Message: message,
	})
}

// TaskExecution records one task execution with its window and outcome.
func (r *Reporter) TaskExecution(task string, start, end time.Time, failed bool, message string) {
	r.append(Event{
		Type:    EventTaskExecution,
		Task:    task,
		Failed:  failed,
		Message: message,
		Start:   start,
		End:     end,
	})
}

func (r *Reporter) append(e Event) {
	e.ID = uuid.NewString()
	e.Server = r.server

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of all recorded events.
func (r *Reporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Flush writes events recorded since the last flush. Safe to call with
// nothing pending.
func (r *Reporter) Flush() error {
	r.mu.Lock()
	pending := r.events[r.flushed:]
	r.flushed = len(r.events)
	r.mu.Unlock()

	if len(pending) == 0 || r.writer == nil {
		return nil
	}
	return r.writer.Write(pending)
}
