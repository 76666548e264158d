// Package runs tracks publish runs: one batch of channel publish attempts
// whose status is recomputed from the reported outcomes.
package runs

import "github.com/mpislabs/draftflow/pkg/core"

// Outcome is one channel's reported publish attempt.
type Outcome struct {
	Channel string             `json:"channel" yaml:"channel" validate:"required,max=64"`
	Result  core.PublishResult `json:"result" yaml:"result" validate:"required,oneof=success failed"`
	Detail  string             `json:"detail,omitempty" yaml:"detail,omitempty" validate:"max=2000"`
}

// Aggregate folds outcomes into a run status: no outcomes is pending,
// all successes is success, all failures is failed, anything else partial.
// The result does not depend on order.
func Aggregate(outcomes []Outcome) core.RunStatus {
	if len(outcomes) == 0 {
		return core.RunPending
	}
	var ok, failed int
	for _, o := range outcomes {
		if o.Result == core.PublishSuccess {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return core.RunSuccess
	case ok == 0:
		return core.RunFailed
	default:
		return core.RunPartial
	}
}
