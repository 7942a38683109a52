package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/equanaut-sha-w1/comet-mcp/internal/adapter/browser"
	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/tracer"
)

// pollInterval is how often a waiting runner re-checks whether its task
// reached the head of the queue.
const pollInterval = 25 * time.Millisecond

// LocalBrowser is the surface the executor needs from the in-process
// browser backend to run local steps.
type LocalBrowser interface {
	Navigate(ctx context.Context, url string) error
	GetContent(ctx context.Context, selector string) (*browser.PageContent, error)
	Screenshot(ctx context.Context, fullPage bool) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector string, text string) error
	Evaluate(ctx context.Context, expression string) (string, error)
}

// DormancyWaker probes the browser extension and revives it when the
// service worker has been suspended.
type DormancyWaker interface {
	IsAlive(ctx context.Context) bool
	Wake(ctx context.Context) (*domain.WakeResult, error)
}

// DelegateOptions tune one delegate call.
type DelegateOptions struct {
	// TargetID scopes the task to one browser target; "" means global.
	TargetID string
	// Timeout bounds the whole task, measured from when it starts
	// running, not from enqueue. Zero means the configured default.
	Timeout time.Duration
	// Async returns immediately with a pending result; the task runs in
	// the background and is observed via GetTaskStatus.
	Async bool
	// Template forces a specific template instead of intent matching.
	Template string
}

// Orchestrator turns free-text task descriptions into step sequences
// and drives them to completion against the browser and the bridged
// tool providers.
type Orchestrator struct {
	registry *Registry
	queue    *Queue
	router   domain.ToolInvoker
	browser  LocalBrowser
	waker    DormancyWaker
	health   *HealthChecker
	logger   *slog.Logger

	defaultTimeout time.Duration
	stepDelay      time.Duration

	// localMu serializes all local browser steps process-wide: the
	// backend drives a single active tab.
	localMu sync.Mutex
}

type Options struct {
	Registry       *Registry
	Queue          *Queue
	Router         domain.ToolInvoker
	Browser        LocalBrowser
	Waker          DormancyWaker
	Health         *HealthChecker
	Logger         *slog.Logger
	DefaultTimeout time.Duration
	StepDelay      time.Duration
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 2 * time.Minute
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.Logger)
	}
	if opts.Queue == nil {
		opts.Queue = NewQueue(opts.Logger)
	}
	return &Orchestrator{
		registry:       opts.Registry,
		queue:          opts.Queue,
		router:         opts.Router,
		browser:        opts.Browser,
		waker:          opts.Waker,
		health:         opts.Health,
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		stepDelay:      opts.StepDelay,
	}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// Delegate resolves a description to a template, builds the concrete
// step list and runs it. The returned TaskResult is always structured;
// the error return is reserved for programming errors, not task
// outcomes.
func (o *Orchestrator) Delegate(ctx context.Context, description string, opts *DelegateOptions) (*domain.TaskResult, error) {
	if opts == nil {
		opts = &DelegateOptions{}
	}
	ctx, span := tracer.StartSpan(ctx, "orchestrator.delegate",
		trace.WithAttributes(tracer.StringAttr("target_id", opts.TargetID)))
	defer span.End()

	tmpl, result := o.resolveTemplate(ctx, description, opts)
	if result != nil {
		return result, nil
	}

	params := ExtractParams(tmpl, description)
	steps := buildSteps(tmpl, params)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	task := domain.NewTaskDelegation(newTaskID(), description, tmpl.Name, opts.TargetID, timeout, steps)
	o.queue.Enqueue(task)
	o.logger.Info("task delegated",
		"task_id", task.ID, "template", tmpl.Name, "target", task.TargetID,
		"steps", len(steps), "async", opts.Async)

	if opts.Async {
		go func() {
			// Detached from the caller: async tasks outlive the request.
			res := o.runWhenReady(context.Background(), task)
			o.logger.Info("async task finished", "task_id", task.ID, "status", res.Status)
		}()
		return &domain.TaskResult{
			Status:       domain.StatusPendingV,
			TaskID:       task.ID,
			Payload:      map[string]any{"task_id": task.ID, "template": tmpl.Name},
			ToolsInvoked: []string{},
			StepsTotal:   len(steps),
		}, nil
	}
	return o.runWhenReady(ctx, task), nil
}

func (o *Orchestrator) resolveTemplate(ctx context.Context, description string, opts *DelegateOptions) (*domain.TaskTemplate, *domain.TaskResult) {
	if opts.Template != "" {
		tmpl, ok := o.registry.Get(opts.Template)
		if !ok {
			return nil, &domain.TaskResult{
				Status:       domain.StatusFailure,
				ToolsInvoked: []string{},
				Error: &domain.TaskError{
					Code:        domain.CodeInvalidTemplate,
					Message:     fmt.Sprintf("unknown template %q", opts.Template),
					Recoverable: false,
					FailedStep:  -1,
				},
			}
		}
		return tmpl, nil
	}
	if tmpl := o.registry.Match(description); tmpl != nil {
		return tmpl, nil
	}
	return nil, o.noMatchResult(ctx, description)
}

// noMatchResult builds the enriched NO_TEMPLATE_MATCH failure: scored
// template suggestions, the tool catalog and current health, so an
// agent caller can reformulate instead of retrying blind.
func (o *Orchestrator) noMatchResult(ctx context.Context, description string) *domain.TaskResult {
	scores := ScoreTemplates(o.registry.All(), description)

	var catalog []domain.ToolDescriptor
	if o.router != nil {
		catalog = o.router.Catalog()
	}
	var health *domain.HealthCheckResult
	if o.health != nil {
		if health = o.health.Cached(); health == nil {
			health = o.health.Check(ctx, false)
		}
	}

	return &domain.TaskResult{
		Status:       domain.StatusFailure,
		ToolsInvoked: []string{},
		Payload: map[string]any{
			"matched":             false,
			"available_templates": scores,
			"available_tools":     catalog,
			"health":              health,
		},
		Error: &domain.TaskError{
			Code:        domain.CodeNoTemplateMatch,
			Message:     "no template matched the task description",
			Recoverable: true,
			FailedStep:  -1,
		},
	}
}

// buildSteps instantiates a template's steps with extracted parameters
// merged in. A key the template step sets explicitly always wins over
// an extracted value.
func buildSteps(tmpl *domain.TaskTemplate, extracted map[string]any) []*domain.TaskStep {
	steps := make([]*domain.TaskStep, len(tmpl.Steps))
	for i, ts := range tmpl.Steps {
		params := make(map[string]any, len(ts.Params)+len(extracted))
		for k, v := range extracted {
			params[k] = v
		}
		for k, v := range ts.Params {
			params[k] = v
		}
		steps[i] = &domain.TaskStep{
			ToolName: ts.ToolName,
			Provider: ts.Provider,
			Category: ts.Category,
			Params:   params,
			Optional: ts.Optional,
			Status:   domain.StepPending,
		}
	}
	return steps
}

// runWhenReady waits for the task's queue turn, then executes it. The
// wait respects caller cancellation: an abandoned wait cancels the
// queued task.
func (o *Orchestrator) runWhenReady(ctx context.Context, task *domain.TaskDelegation) *domain.TaskResult {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for !o.queue.TryStart(task) {
		if task.Cancelled() {
			return o.cancelledResult(task)
		}
		select {
		case <-ctx.Done():
			o.queue.Cancel(task.ID)
			return o.cancelledResult(task)
		case <-tick.C:
		}
	}
	return o.run(ctx, task)
}

func (o *Orchestrator) run(ctx context.Context, task *domain.TaskDelegation) *domain.TaskResult {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.run",
		trace.WithAttributes(
			tracer.StringAttr("task_id", task.ID),
			tracer.StringAttr("template", task.Template),
			tracer.IntAttr("steps", task.StepCount()),
		))
	defer span.End()

	deadline := task.StartedAt().Add(task.Timeout)
	toolsInvoked := make([]string, 0, task.StepCount())
	completed := 0

	for i := 0; i < task.StepCount(); i++ {
		// Cancellation is cooperative: checked once per iteration, before
		// any work for the step begins.
		if task.Cancelled() {
			return o.cancelledResult(task)
		}
		if !time.Now().Before(deadline) {
			task.MarkFailed(time.Now())
			o.queue.CompleteActive(task.TargetID)
			o.logger.Warn("task deadline exceeded", "task_id", task.ID, "at_step", i)
			res := o.finishResult(task, domain.StatusPartial, toolsInvoked, completed, nil)
			res.Error = &domain.TaskError{
				Code:        domain.CodeTimeout,
				Message:     fmt.Sprintf("task deadline exceeded before step %d", i),
				Recoverable: false,
				FailedStep:  i,
			}
			tracer.RecordError(span, domain.ErrDeadlineExceeded)
			return res
		}

		task.AdvanceTo(i)
		step := task.Step(i)
		o.guardDormancy(ctx, step)

		task.BeginStep(i)
		start := time.Now()
		data, err := o.dispatch(ctx, step, deadline)
		elapsed := time.Since(start)

		if err != nil {
			if step.Optional {
				task.FinishStep(i, domain.StepSkipped, nil, err.Error(), elapsed)
				toolsInvoked = append(toolsInvoked, step.ToolName)
				o.logger.Warn("optional step failed, skipping",
					"task_id", task.ID, "step", i, "tool", step.ToolName, "error", err)
				o.delayBetweenSteps(ctx, i, task.StepCount())
				continue
			}
			task.FinishStep(i, domain.StepFailed, nil, err.Error(), elapsed)
			task.MarkFailed(time.Now())
			o.queue.CompleteActive(task.TargetID)
			o.logger.Error("step failed",
				"task_id", task.ID, "step", i, "tool", step.ToolName, "error", err)
			res := o.finishResult(task, domain.StatusFailure, toolsInvoked, completed, nil)
			res.Error = &domain.TaskError{
				Code:        domain.CodeStepFailed,
				Message:     fmt.Sprintf("step %d (%s) failed: %v", i, step.ToolName, err),
				Recoverable: false,
				FailedStep:  i,
			}
			tracer.RecordError(span, err)
			return res
		}

		task.FinishStep(i, domain.StepCompleted, data, "", elapsed)
		toolsInvoked = append(toolsInvoked, step.ToolName)
		completed++
		o.logger.Debug("step completed",
			"task_id", task.ID, "step", i, "tool", step.ToolName, "duration_ms", elapsed.Milliseconds())
		o.delayBetweenSteps(ctx, i, task.StepCount())
	}

	if task.Cancelled() {
		return o.cancelledResult(task)
	}
	task.MarkCompleted(time.Now())
	o.queue.CompleteActive(task.TargetID)
	tracer.SetOK(span)

	var lastData json.RawMessage
	if n := task.StepCount(); n > 0 {
		lastData = task.Step(n - 1).Result
	}
	payload := map[string]any{
		"template": task.Template,
		"output":   lastData,
		"steps":    task.Snapshot().Steps,
	}
	return o.finishResult(task, domain.StatusSuccess, toolsInvoked, completed, payload)
}

// guardDormancy revives a suspended extension before browser steps.
// Best effort: a failed wake does not block the step, which will fail
// on its own terms if the browser really is gone.
func (o *Orchestrator) guardDormancy(ctx context.Context, step *domain.TaskStep) {
	if o.waker == nil || step.Category != domain.CategoryBrowser {
		return
	}
	if o.waker.IsAlive(ctx) {
		return
	}
	wake, err := o.waker.Wake(ctx)
	if err != nil {
		o.logger.Warn("dormancy wake failed", "tool", step.ToolName, "error", err)
		return
	}
	o.logger.Info("extension revived", "technique", wake.Technique, "attempts", wake.Attempts)
}

func (o *Orchestrator) dispatch(ctx context.Context, step *domain.TaskStep, deadline time.Time) (json.RawMessage, error) {
	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if step.Provider == domain.ProviderLocal {
		o.localMu.Lock()
		defer o.localMu.Unlock()
		return o.runLocal(stepCtx, step)
	}

	name := step.ToolName
	if step.Provider != "" {
		name = string(step.Provider) + domain.QualifiedSeparator + step.ToolName
	}
	res, err := o.router.Invoke(stepCtx, name, step.Params)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, domain.NewDomainError("orchestrator.dispatch", domain.ErrStepFailed, res.Error)
	}
	return res.Data, nil
}

// runLocal executes one in-process browser tool. Results are marshaled
// to the same shape remote tools produce so step payloads stay uniform.
func (o *Orchestrator) runLocal(ctx context.Context, step *domain.TaskStep) (json.RawMessage, error) {
	if o.browser == nil {
		return nil, domain.NewDomainError("orchestrator.local", domain.ErrBrowserNotConnected, "no browser backend configured")
	}
	switch step.ToolName {
	case "navigate":
		url := stringParam(step.Params, "url")
		if url == "" {
			return nil, domain.NewDomainError("orchestrator.local", domain.ErrInvalidInput, "navigate requires a url")
		}
		if err := o.browser.Navigate(ctx, url); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"navigated": true, "url": url})
	case "get_content":
		content, err := o.browser.GetContent(ctx, stringParam(step.Params, "selector"))
		if err != nil {
			return nil, err
		}
		return json.Marshal(content)
	case "screenshot":
		shot, err := o.browser.Screenshot(ctx, boolParam(step.Params, "full_page"))
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"format": "jpeg", "base64": shot})
	case "click":
		selector := stringParam(step.Params, "selector")
		if selector == "" {
			return nil, domain.NewDomainError("orchestrator.local", domain.ErrInvalidInput, "click requires a selector")
		}
		if err := o.browser.Click(ctx, selector); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"clicked": selector})
	case "type":
		selector := stringParam(step.Params, "selector")
		if selector == "" {
			return nil, domain.NewDomainError("orchestrator.local", domain.ErrInvalidInput, "type requires a selector")
		}
		if err := o.browser.Type(ctx, selector, stringParam(step.Params, "text")); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"typed": selector})
	case "evaluate":
		expr := stringParam(step.Params, "expression")
		if expr == "" {
			return nil, domain.NewDomainError("orchestrator.local", domain.ErrInvalidInput, "evaluate requires an expression")
		}
		out, err := o.browser.Evaluate(ctx, expr)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"result": out})
	default:
		return nil, domain.NewDomainError("orchestrator.local", domain.ErrToolNotFound, step.ToolName)
	}
}

func (o *Orchestrator) delayBetweenSteps(ctx context.Context, i, total int) {
	if o.stepDelay <= 0 || i >= total-1 {
		return
	}
	select {
	case <-time.After(o.stepDelay):
	case <-ctx.Done():
	}
}

func (o *Orchestrator) cancelledResult(task *domain.TaskDelegation) *domain.TaskResult {
	res := o.finishResult(task, domain.StatusCancelled, toolNames(task), completedSteps(task), nil)
	res.Error = &domain.TaskError{
		Code:        domain.CodeCancelled,
		Message:     "task cancelled",
		Recoverable: false,
		FailedStep:  -1,
	}
	return res
}

func (o *Orchestrator) finishResult(task *domain.TaskDelegation, status domain.TaskStatus, toolsInvoked []string, completed int, payload any) *domain.TaskResult {
	if toolsInvoked == nil {
		toolsInvoked = []string{}
	}
	var durationMS int64
	if started, done := task.StartedAt(), task.CompletedAt(); !started.IsZero() && !done.IsZero() {
		durationMS = done.Sub(started).Milliseconds()
	}
	return &domain.TaskResult{
		Status:         status,
		TaskID:         task.ID,
		Payload:        payload,
		DurationMS:     durationMS,
		ToolsInvoked:   toolsInvoked,
		StepsCompleted: completed,
		StepsTotal:     task.StepCount(),
	}
}

func toolNames(task *domain.TaskDelegation) []string {
	out := []string{}
	for i := 0; i < task.StepCount(); i++ {
		s := task.Step(i)
		if s.Status == domain.StepCompleted || s.Status == domain.StepSkipped {
			out = append(out, s.ToolName)
		}
	}
	return out
}

func completedSteps(task *domain.TaskDelegation) int {
	n := 0
	for i := 0; i < task.StepCount(); i++ {
		if task.Step(i).Status == domain.StepCompleted {
			n++
		}
	}
	return n
}

// GetTaskStatus returns a snapshot of a known task.
func (o *Orchestrator) GetTaskStatus(id string) (*domain.TaskSnapshot, error) {
	task, ok := o.queue.Get(id)
	if !ok {
		return nil, domain.NewDomainError("orchestrator.status", domain.ErrTaskNotFound, id)
	}
	snap := task.Snapshot()
	return &snap, nil
}

// CancelTask cancels a queued or running task. Running tasks stop at
// the next step boundary.
func (o *Orchestrator) CancelTask(id string) error {
	if _, ok := o.queue.Get(id); !ok {
		return domain.NewDomainError("orchestrator.cancel", domain.ErrTaskNotFound, id)
	}
	if !o.queue.Cancel(id) {
		return domain.NewDomainError("orchestrator.cancel", domain.ErrInvalidInput, "task already finished")
	}
	return nil
}

// Health runs (or returns the cached) health check.
func (o *Orchestrator) Health(ctx context.Context, force bool) *domain.HealthCheckResult {
	if o.health == nil {
		return &domain.HealthCheckResult{Overall: domain.HealthHealthy, CheckedAt: time.Now()}
	}
	return o.health.Check(ctx, force)
}

func newTaskID() string {
	return "task_" + ulid.Make().String()
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}
