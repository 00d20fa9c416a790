// Package sequencer drives ordered, confirmation-gated execution of a
// resolved plan against an external actuator. Steps run strictly in
// order and the run halts on the first failure: later steps are assumed
// to depend on earlier ones, so continuing after a failure would act on
// wrong state.
package sequencer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/deca/voicecmd/pkg/types"
)

// Actuator performs one intent. The sequencer never retries an actuator
// call.
type Actuator interface {
	Execute(ctx context.Context, intent types.Intent) types.ExecutionResult
}

// Confirmer asks the operator for a yes/no decision. Ask may suspend
// indefinitely; a context cancellation during the suspension aborts the
// run with a cancelled outcome.
type Confirmer interface {
	Ask(ctx context.Context, prompt string) (bool, error)
}

// StepState is the per-step state machine.
type StepState int

const (
	StepPending StepState = iota
	StepConfirming
	StepExecuting
	StepDone
	StepAborted
)

func (s StepState) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepConfirming:
		return "confirming"
	case StepExecuting:
		return "executing"
	case StepDone:
		return "done"
	case StepAborted:
		return "aborted"
	}
	return "unknown"
}

// MarshalJSON serializes the state under its string name.
func (s StepState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// RunStatus is the aggregate outcome of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed" // every step reached Done
	RunAborted   RunStatus = "aborted"   // a step failed or a confirmation was denied
	RunCancelled RunStatus = "cancelled" // the operator interrupted the run
)

// StepOutcome records one step's final state. Result is only set for
// steps that reached Executing.
type StepOutcome struct {
	Index  int                    `json:"index"`
	Intent types.Intent           `json:"intent"`
	State  StepState              `json:"state"`
	Result *types.ExecutionResult `json:"result,omitempty"`
}

// Report is the aggregate outcome of running a plan or a bare intent.
// For a failure at step k, Results holds exactly k entries: the first
// k-1 succeeded and the k-th carries the failure.
type Report struct {
	Status  RunStatus               `json:"status"`
	Steps   []StepOutcome           `json:"steps"`
	Results []types.ExecutionResult `json:"results"`
	Reason  string                  `json:"reason,omitempty"`
}

// Sequencer runs plans. DryRun replaces execution with a description-only
// step that never touches the actuator.
type Sequencer struct {
	actuator  Actuator
	confirmer Confirmer
	dryRun    bool
	log       *zap.SugaredLogger
}

// New builds a sequencer.
func New(actuator Actuator, confirmer Confirmer, dryRun bool, log *zap.SugaredLogger) *Sequencer {
	return &Sequencer{actuator: actuator, confirmer: confirmer, dryRun: dryRun, log: log}
}

// RunIntent runs the state machine over a single bare intent.
func (s *Sequencer) RunIntent(ctx context.Context, intent types.Intent) Report {
	return s.run(ctx, []types.Intent{intent}, "")
}

// RunPlan runs the state machine over every step of a plan in order.
func (s *Sequencer) RunPlan(ctx context.Context, plan types.Plan) Report {
	return s.run(ctx, plan.Steps, plan.Summary)
}

func (s *Sequencer) run(ctx context.Context, steps []types.Intent, summary string) Report {
	report := Report{Status: RunCompleted}
	for i, intent := range steps {
		report.Steps = append(report.Steps, StepOutcome{Index: i, Intent: intent, State: StepPending})
	}

	// One up-front confirmation when any step needs confirmation or is
	// high risk. A sole step that carries its own Confirm flag skips
	// this gate: it will prompt at the step level and must not prompt
	// twice.
	if !s.dryRun && needsRunGate(steps) {
		ok, err := s.confirmer.Ask(ctx, runGatePrompt(steps, summary))
		if err != nil {
			return s.cancel(report, 0, "plan confirmation interrupted")
		}
		if !ok {
			report.Status = RunAborted
			report.Reason = "plan rejected by operator"
			if len(steps) == 1 {
				report.Reason = "step 1 rejected by operator"
			}
			s.markAbortedFrom(&report, 0)
			return report
		}
	}

	for i := range steps {
		intent := steps[i]

		if err := ctx.Err(); err != nil {
			return s.cancel(report, i, "run interrupted")
		}

		if s.dryRun {
			// Description-only: straight to Done, the actuator is never
			// consulted.
			result := types.ExecutionResult{
				Succeeded: true,
				Message:   fmt.Sprintf("[DRY RUN] 将执行：%s，参数：%v", intent.Name, intent.Slots),
			}
			s.finishStep(&report, i, result)
			continue
		}

		if intent.Confirm {
			report.Steps[i].State = StepConfirming
			s.log.Infow("step awaiting confirmation", "step", i+1, "intent", intent.Name)

			ok, err := s.confirmer.Ask(ctx, confirmPrompt(intent))
			if err != nil {
				return s.cancel(report, i, "confirmation interrupted")
			}
			if !ok {
				report.Status = RunAborted
				report.Reason = fmt.Sprintf("step %d rejected by operator", i+1)
				s.markAbortedFrom(&report, i)
				return report
			}
		}

		report.Steps[i].State = StepExecuting
		s.log.Infow("executing step", "step", i+1, "total", len(steps), "intent", intent.Name)

		result := s.actuator.Execute(ctx, intent)
		report.Results = append(report.Results, result)
		r := result
		report.Steps[i].Result = &r

		if err := ctx.Err(); err != nil {
			report.Steps[i].State = StepAborted
			report.Status = RunCancelled
			report.Reason = "execution interrupted"
			s.markAbortedFrom(&report, i+1)
			return report
		}

		if !result.Succeeded {
			// Halt on first failure: nothing after step i executes.
			report.Steps[i].State = StepAborted
			report.Status = RunAborted
			report.Reason = fmt.Sprintf("step %d failed: %s", i+1, failureDetail(result))
			s.markAbortedFrom(&report, i+1)
			s.log.Warnw("plan halted on failure", "step", i+1, "error", result.Error)
			return report
		}

		report.Steps[i].State = StepDone
	}

	return report
}

func (s *Sequencer) finishStep(report *Report, i int, result types.ExecutionResult) {
	report.Results = append(report.Results, result)
	r := result
	report.Steps[i].Result = &r
	report.Steps[i].State = StepDone
}

func (s *Sequencer) cancel(report Report, from int, reason string) Report {
	report.Status = RunCancelled
	report.Reason = reason
	s.markAbortedFrom(&report, from)
	s.log.Infow("run cancelled", "reason", reason)
	return report
}

// markAbortedFrom moves every not-yet-finished step at or after index
// into the Aborted state.
func (s *Sequencer) markAbortedFrom(report *Report, from int) {
	for i := from; i < len(report.Steps); i++ {
		if report.Steps[i].State != StepDone {
			report.Steps[i].State = StepAborted
		}
	}
}

// needsRunGate reports whether the run requires an up-front
// confirmation: any step gated by Confirm or classified high risk. A
// sole step with Confirm set is exempt, since its own step gate already
// prompts.
func needsRunGate(steps []types.Intent) bool {
	if len(steps) == 1 && steps[0].Confirm {
		return false
	}
	for _, step := range steps {
		if step.Confirm || step.Safety.Risk == types.RiskHigh {
			return true
		}
	}
	return false
}

func runGatePrompt(steps []types.Intent, summary string) string {
	if len(steps) == 1 {
		return confirmPrompt(steps[0])
	}
	if summary == "" {
		summary = fmt.Sprintf("即将执行%d个步骤的计划", len(steps))
	}
	return fmt.Sprintf("%s，其中包含需要确认的操作，是否继续？", summary)
}

func confirmPrompt(intent types.Intent) string {
	if intent.SpeakBack != "" {
		return intent.SpeakBack + " 继续执行？"
	}
	return fmt.Sprintf("即将执行 %s，继续？", intent.Name)
}

func failureDetail(result types.ExecutionResult) string {
	if result.Error != "" {
		return result.Error
	}
	return result.Message
}
