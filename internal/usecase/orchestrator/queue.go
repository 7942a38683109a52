package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// globalTarget keys tasks that are not scoped to a particular browser
// target. Such tasks serialize against each other but not against
// target-scoped ones.
const globalTarget = "__global__"

// Queue is a per-target FIFO task queue with a single active slot per
// target. At most one task per target runs at a time; the rest wait in
// arrival order.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]*domain.TaskDelegation
	active  map[string]*domain.TaskDelegation
	byID    map[string]*domain.TaskDelegation
	logger  *slog.Logger
}

func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		pending: make(map[string][]*domain.TaskDelegation),
		active:  make(map[string]*domain.TaskDelegation),
		byID:    make(map[string]*domain.TaskDelegation),
		logger:  logger,
	}
}

func queueKey(targetID string) string {
	if targetID == "" {
		return globalTarget
	}
	return targetID
}

// Enqueue appends a pending task to its target's queue.
func (q *Queue) Enqueue(t *domain.TaskDelegation) {
	key := queueKey(t.TargetID)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[key] = append(q.pending[key], t)
	q.byID[t.ID] = t
	q.logger.Debug("task enqueued", "task_id", t.ID, "target", key, "depth", len(q.pending[key]))
}

// Dequeue pops the head of a target's queue, marks it running and
// installs it in the active slot. Returns nil while the slot is held by
// a running task or the queue is empty. A terminal task left in the
// slot does not block; it is swept on the next call.
func (q *Queue) Dequeue(targetID string) *domain.TaskDelegation {
	key := queueKey(targetID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked(key, nil)
}

// TryStart is Dequeue restricted to one task: it starts t only when t
// is the head of its queue and the slot is free. Each task's runner
// calls this so runners never steal each other's tasks.
func (q *Queue) TryStart(t *domain.TaskDelegation) bool {
	key := queueKey(t.TargetID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked(key, t) == t
}

func (q *Queue) dequeueLocked(key string, want *domain.TaskDelegation) *domain.TaskDelegation {
	if a := q.active[key]; a != nil {
		if a.State() == domain.TaskRunning {
			return nil
		}
		delete(q.active, key)
	}
	for len(q.pending[key]) > 0 {
		head := q.pending[key][0]
		if want != nil && head != want {
			return nil
		}
		q.pending[key] = q.pending[key][1:]
		if !head.MarkRunning(time.Now()) {
			// Cancelled while queued; drop and keep going.
			continue
		}
		q.active[key] = head
		return head
	}
	return nil
}

// CompleteActive releases a target's active slot. The task itself is
// stamped terminal by its Mark* transition before this is called.
func (q *Queue) CompleteActive(targetID string) {
	key := queueKey(targetID)
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, key)
}

// Get looks a task up by ID, across all targets and states.
func (q *Queue) Get(id string) (*domain.TaskDelegation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[id]
	return t, ok
}

// Cancel marks a task cancelled and removes it from the queue
// machinery. A queued task is dropped from its pending list; a running
// one has its slot released so the next task can start, while its
// executor observes the cancellation at the next step boundary.
// Returns false for unknown or already-terminal tasks.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	if !t.MarkCancelled(time.Now()) {
		return false
	}
	key := queueKey(t.TargetID)
	q.pending[key] = removeTask(q.pending[key], t)
	if q.active[key] == t {
		delete(q.active, key)
	}
	q.logger.Info("task cancelled", "task_id", id, "target", key)
	return true
}

// Depth returns the number of tasks waiting for a target, excluding
// the active one.
func (q *Queue) Depth(targetID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[queueKey(targetID)])
}

func removeTask(list []*domain.TaskDelegation, t *domain.TaskDelegation) []*domain.TaskDelegation {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
