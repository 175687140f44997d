package conn

import (
	"drover/internal/facts"
	"drover/internal/notify"
	"drover/internal/profile"
	"drover/internal/report"
	"drover/internal/server"
)

// Frame is one active connection: the live transport, the server it
// reaches, and the per-connection collaborators released when the frame
// is popped. Tasks executing within the frame are tracked on the frame's
// own task stack so nested runs unwind correctly.
type Frame struct {
	Transport Transport
	Raw       any
	Server    server.Ref
	Facts     *facts.Store
	Profiler  *profile.Profiler
	Reporter  *report.Reporter
	Notifier  *notify.Notifier

	tasks []string
}

// PushTask records a task as executing within this frame.
func (f *Frame) PushTask(name string) {
	f.tasks = append(f.tasks, name)
}

// PopTask removes the most recently pushed task. Popping an empty task
// stack is a no-op.
func (f *Frame) PopTask() {
	if len(f.tasks) > 0 {
		f.tasks = f.tasks[:len(f.tasks)-1]
	}
}

// CurrentTask returns the innermost executing task name, or "".
func (f *Frame) CurrentTask() string {
	if len(f.tasks) == 0 {
		return ""
	}
	return f.tasks[len(f.tasks)-1]
}

// TaskDepth returns how many tasks are executing within this frame.
func (f *Frame) TaskDepth() int {
	return len(f.tasks)
}

// Stack tracks the active connection frames for one logical executing
// thread. Each concurrent per-host run owns its own Stack; it is not
// safe to share one across goroutines. Frames nest: re-entrant connects
// push new frames and "current" always means the top.
type Stack struct {
	frames []*Frame
}

// NewStack returns an empty connection-context stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push makes the frame the current connection.
func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
}

// Pop removes and returns the current frame, or nil when empty.
func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// Current returns the top frame without removing it, or nil when empty.
func (s *Stack) Current() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of active frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}
