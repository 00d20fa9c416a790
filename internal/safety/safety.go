// Package safety cross-checks resolved intents against the deterministic
// dangerous-operation detector. It guards against the generative parser
// under-reporting risk for inputs the rule tables recognize as dangerous.
package safety

import (
	"github.com/deca/voicecmd/pkg/types"
)

// Detector is the dangerous-keyword check shared with the rule matcher.
type Detector interface {
	Dangerous(text string) bool
}

// Escalator raises the risk of intents whose source text trips the
// detector. It is pure: no I/O, and inputs are never mutated.
type Escalator struct {
	detector         Detector
	confirmDangerous bool
}

// New builds an escalator. When confirmDangerous is set, escalated
// intents are also forced through the confirmation gate.
func New(detector Detector, confirmDangerous bool) *Escalator {
	return &Escalator{detector: detector, confirmDangerous: confirmDangerous}
}

// Escalate returns a copy of the intent with risk forced to high when
// the detector fires on the source text and the intent's own risk is
// low. A risk the model already raised is never lowered.
func (e *Escalator) Escalate(intent types.Intent, sourceText string) types.Intent {
	if e.detector.Dangerous(sourceText) && intent.Safety.Risk == types.RiskLow {
		intent.Safety.Risk = types.RiskHigh
		intent.Safety.Reason = "dangerous keyword detected"
		if e.confirmDangerous {
			intent.Confirm = true
		}
	}
	return intent
}

// EscalatePlan applies Escalate to every step, returning a new plan.
func (e *Escalator) EscalatePlan(plan types.Plan, sourceText string) types.Plan {
	steps := make([]types.Intent, len(plan.Steps))
	for i, step := range plan.Steps {
		steps[i] = e.Escalate(step, sourceText)
	}
	plan.Steps = steps
	return plan
}
