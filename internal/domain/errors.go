package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrTemplateNotFound  = fmt.Errorf("template not found")
	ErrTemplateDuplicate = fmt.Errorf("template already registered")
	ErrNoTemplateMatch   = fmt.Errorf("no template matched description")
	ErrToolNotFound      = fmt.Errorf("tool not found")
	ErrTaskNotFound      = fmt.Errorf("task not found")
	ErrDeadlineExceeded  = fmt.Errorf("task deadline exceeded")
	ErrStepFailed        = fmt.Errorf("task step failed")
	ErrTaskCancelled     = fmt.Errorf("task cancelled")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrLocalDispatch     = fmt.Errorf("local tools are executed by the caller, not the router")

	// Browser-control surface errors. The backend must keep these
	// distinguishable so callers can tell a dead transport from a script
	// that threw.
	ErrBrowserNotConnected = fmt.Errorf("browser not connected")
	ErrEvalException       = fmt.Errorf("evaluation threw")
	ErrTransportClosed     = fmt.Errorf("browser transport closed")

	// Bridge errors.
	ErrBridgeUnavailable = fmt.Errorf("tool bridge unavailable")
	ErrBridgeCallTimeout = fmt.Errorf("tool bridge call timed out")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category reported in TaskResult
// errors and used by monitoring.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeInvalidTemplate     ErrorCode = "INVALID_TEMPLATE"
	CodeNoTemplateMatch     ErrorCode = "NO_TEMPLATE_MATCH"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeStepFailed          ErrorCode = "STEP_FAILED"
	CodeCancelled           ErrorCode = "CANCELLED"
	CodeToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	CodeTaskNotFound        ErrorCode = "TASK_NOT_FOUND"
	CodeTemplateDuplicate   ErrorCode = "TEMPLATE_DUPLICATE"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeLocalDispatch       ErrorCode = "LOCAL_DISPATCH"
	CodeBrowserNotConnected ErrorCode = "BROWSER_NOT_CONNECTED"
	CodeEvalException       ErrorCode = "EVAL_EXCEPTION"
	CodeTransportClosed     ErrorCode = "TRANSPORT_CLOSED"
	CodeBridgeUnavailable   ErrorCode = "BRIDGE_UNAVAILABLE"
	CodeBridgeCallTimeout   ErrorCode = "BRIDGE_CALL_TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrTemplateNotFound:    CodeInvalidTemplate,
	ErrTemplateDuplicate:   CodeTemplateDuplicate,
	ErrNoTemplateMatch:     CodeNoTemplateMatch,
	ErrToolNotFound:        CodeToolNotFound,
	ErrTaskNotFound:        CodeTaskNotFound,
	ErrDeadlineExceeded:    CodeTimeout,
	ErrStepFailed:          CodeStepFailed,
	ErrTaskCancelled:       CodeCancelled,
	ErrInvalidInput:        CodeInvalidInput,
	ErrLocalDispatch:       CodeLocalDispatch,
	ErrBrowserNotConnected: CodeBrowserNotConnected,
	ErrEvalException:       CodeEvalException,
	ErrTransportClosed:     CodeTransportClosed,
	ErrBridgeUnavailable:   CodeBridgeUnavailable,
	ErrBridgeCallTimeout:   CodeBridgeCallTimeout,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
