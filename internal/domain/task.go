package domain

import (
	"encoding/json"
	"sync"
	"time"
)

// TaskState is the lifecycle state of a TaskDelegation. The state machine
// is strictly forward: pending -> running -> {completed, failed, cancelled}.
// A cancelled task never transitions again.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// StepStatus is the lifecycle state of one concrete TaskStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// TaskStep is the runtime instance of a TaskTemplateStep. It is created
// when the delegation is built and mutated only by the executor that owns
// the task.
type TaskStep struct {
	ToolName string          `json:"tool_name"`
	Provider ProviderID      `json:"provider"`
	Category ToolCategory    `json:"category,omitempty"`
	Params   map[string]any  `json:"params,omitempty"`
	Optional bool            `json:"optional,omitempty"`
	Status   StepStatus      `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"-"`

	DurationMS int64 `json:"duration_ms"`
}

// TaskDelegation is one delegated task: a concrete step list plus its
// execution state. The queue and the executor share the same instance by
// identity; all state transitions go through the methods below.
type TaskDelegation struct {
	ID          string
	Description string
	Template    string
	TargetID    string // "" means global, non-target-scoped
	Timeout     time.Duration

	mu          sync.Mutex
	state       TaskState
	steps       []*TaskStep
	current     int
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

// NewTaskDelegation creates a pending delegation.
func NewTaskDelegation(id, description, template, targetID string, timeout time.Duration, steps []*TaskStep) *TaskDelegation {
	return &TaskDelegation{
		ID:          id,
		Description: description,
		Template:    template,
		TargetID:    targetID,
		Timeout:     timeout,
		state:       TaskPending,
		steps:       steps,
		createdAt:   time.Now(),
	}
}

// State returns the current lifecycle state.
func (t *TaskDelegation) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cancelled reports whether the task has been cancelled.
func (t *TaskDelegation) Cancelled() bool {
	return t.State() == TaskCancelled
}

// StartedAt returns when the task left the queue and began running.
func (t *TaskDelegation) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// CompletedAt returns when the task reached a terminal state.
func (t *TaskDelegation) CompletedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completedAt
}

// MarkRunning transitions pending -> running and stamps startedAt.
// Returns false for any other starting state.
func (t *TaskDelegation) MarkRunning(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskPending {
		return false
	}
	t.state = TaskRunning
	t.startedAt = now
	return true
}

// MarkCompleted transitions running -> completed.
func (t *TaskDelegation) MarkCompleted(now time.Time) bool {
	return t.finish(TaskCompleted, now)
}

// MarkFailed transitions running -> failed.
func (t *TaskDelegation) MarkFailed(now time.Time) bool {
	return t.finish(TaskFailed, now)
}

func (t *TaskDelegation) finish(to TaskState, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning {
		return false
	}
	t.state = to
	t.completedAt = now
	return true
}

// MarkCancelled transitions any non-terminal state to cancelled.
// A task that already reached a terminal state is left untouched.
func (t *TaskDelegation) MarkCancelled(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = TaskCancelled
	t.completedAt = now
	return true
}

// CurrentStep returns the index of the step being (or about to be) run.
func (t *TaskDelegation) CurrentStep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// AdvanceTo moves the step cursor forward. The cursor never decreases.
func (t *TaskDelegation) AdvanceTo(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i > t.current {
		t.current = i
	}
}

// StepCount returns the number of concrete steps.
func (t *TaskDelegation) StepCount() int {
	return len(t.steps)
}

// Step returns the step at index i. The executor is the only mutator.
func (t *TaskDelegation) Step(i int) *TaskStep {
	return t.steps[i]
}

// BeginStep marks step i running.
func (t *TaskDelegation) BeginStep(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps[i].Status = StepRunning
}

// FinishStep records the outcome of step i.
func (t *TaskDelegation) FinishStep(i int, status StepStatus, result json.RawMessage, errMsg string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.steps[i]
	s.Status = status
	s.Result = result
	s.Error = errMsg
	s.Duration = d
	s.DurationMS = d.Milliseconds()
}

// TaskSnapshot is a point-in-time copy of a delegation, safe to serialize
// while the executor keeps running.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Template    string     `json:"template,omitempty"`
	TargetID    string     `json:"target_id,omitempty"`
	State       TaskState  `json:"state"`
	Steps       []TaskStep `json:"steps"`
	CurrentStep int        `json:"current_step"`
	TimeoutMS   int64      `json:"timeout_ms"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot copies the delegation's observable state.
func (t *TaskDelegation) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	steps := make([]TaskStep, len(t.steps))
	for i, s := range t.steps {
		steps[i] = *s
	}

	snap := TaskSnapshot{
		ID:          t.ID,
		Description: t.Description,
		Template:    t.Template,
		TargetID:    t.TargetID,
		State:       t.state,
		Steps:       steps,
		CurrentStep: t.current,
		TimeoutMS:   t.Timeout.Milliseconds(),
		CreatedAt:   t.createdAt,
	}
	if !t.startedAt.IsZero() {
		st := t.startedAt
		snap.StartedAt = &st
	}
	if !t.completedAt.IsZero() {
		ct := t.completedAt
		snap.CompletedAt = &ct
	}
	return snap
}

// TaskStatus is the caller-facing outcome category of a delegate call.
type TaskStatus string

const (
	StatusSuccess   TaskStatus = "success"
	StatusFailure   TaskStatus = "failure"
	StatusPartial   TaskStatus = "partial"
	StatusCancelled TaskStatus = "cancelled"
	StatusPendingV  TaskStatus = "pending"
)

// TaskError is the structured error reported inside a TaskResult.
type TaskError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	// FailedStep is the index of the failing step (STEP_FAILED) or of the
	// step that was about to run when the deadline hit (TIMEOUT).
	// -1 when not applicable.
	FailedStep int `json:"failed_step"`
}

// TaskResult is the structure returned once per synchronous delegate call,
// or once per async completion observed via polling. Never persisted.
type TaskResult struct {
	Status         TaskStatus `json:"status"`
	TaskID         string     `json:"task_id,omitempty"`
	Payload        any        `json:"payload,omitempty"`
	DurationMS     int64      `json:"duration_ms"`
	ToolsInvoked   []string   `json:"tools_invoked"`
	StepsCompleted int        `json:"steps_completed"`
	StepsTotal     int        `json:"steps_total"`
	Error          *TaskError `json:"error,omitempty"`
}
