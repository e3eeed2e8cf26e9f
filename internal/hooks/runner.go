// Package hooks runs the application's integration callback with each
// decision the SDK makes. A misbehaving callback must never break the
// decision path, so invocation is panic-safe and synchronous errors are
// only logged.
package hooks

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Callback receives a decision description: feature and campaign
// identifiers, the user id, and the API that produced the decision.
type Callback func(decision map[string]interface{})

type Runner struct {
	callback Callback
	loggers  ldlog.Loggers
}

func NewRunner(callback Callback, loggers ldlog.Loggers) *Runner {
	return &Runner{callback: callback, loggers: loggers}
}

// Execute invokes the callback if one is registered.
func (r *Runner) Execute(decision map[string]interface{}) {
	if r == nil || r.callback == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.loggers.Errorf("integration callback panicked: %v", p)
		}
	}()
	r.callback(decision)
}
