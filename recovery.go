package owinbridge

import (
	"fmt"
	log "log/slog"
	"runtime/debug"
)

// recoverEngine turns a panic raised by engine code into an error wrapping
// ErrEnginePanic and hands it to report. It must be deferred directly.
func recoverEngine(logger *log.Logger, report func(error)) {
	rec := recover()
	if rec == nil {
		return
	}
	message := fmt.Sprintf("PANIC RECOVERED: %v", rec)
	logger.Error(message, log.String("stack", string(debug.Stack())))
	report(fmt.Errorf("%w: %v", ErrEnginePanic, rec))
}
