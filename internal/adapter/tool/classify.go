package tool

import (
	"errors"
	"strings"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// transportSentinels lists domain errors that indicate the failure lives in
// the transport, not the tool: reconnecting and retrying may succeed.
var transportSentinels = []error{
	domain.ErrTransportClosed,
	domain.ErrBrowserNotConnected,
	domain.ErrBridgeUnavailable,
	domain.ErrBridgeCallTimeout,
}

// transportPatterns are substrings in error messages that indicate a
// transport-shaped failure. Checked case-insensitively.
var transportPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"websocket",
	"broken pipe",
	"pipe closed",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"unexpected eof",
	"process exited",
}

// IsTransportError reports whether err looks like a transient transport
// failure worth a reconnect-and-retry. Returns false for nil, permanent,
// or unknown errors.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	for _, sentinel := range transportSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range transportPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}
