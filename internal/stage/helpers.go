package stage

import (
	"context"
	"errors"
	"strings"

	"vodingest/internal/services"
)

// retryableHints are substrings of tool or network output that indicate a
// failure worth retrying later.
var retryableHints = []string{
	"429",
	"too many requests",
	"rate limit",
	"timed out",
	"timeout",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"service unavailable",
	"network is unreachable",
	"no route to host",
	"http error 5",
	"unable to download webpage",
}

// IsRetryableOutput reports whether text looks like a transient failure.
func IsRetryableOutput(text string) bool {
	text = strings.ToLower(text)
	for _, h := range retryableHints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

// ToolFailure wraps an external tool failure, marking it transient when the
// context deadline passed or the output matches a retryable hint and fatal
// otherwise.
func ToolFailure(ctx context.Context, component, operation, output string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, component, operation, "phase timed out", ctxErr)
		}
		return ctxErr
	}
	message := strings.TrimSpace(output)
	if IsRetryableOutput(message) {
		return services.Wrap(services.ErrTransient, component, operation, message, err)
	}
	if message == "" {
		message = "external tool failed"
	}
	return services.Wrap(services.ErrExternalTool, component, operation, message, err)
}
