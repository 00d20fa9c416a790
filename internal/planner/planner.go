// Package planner is the top-level resolution entry point. It turns one
// utterance into either a single Intent or a multi-step Plan: generative
// parsing first, then a heuristic splitter over the deterministic rule
// matcher when the generative channel fails. This layer never fails
// outward; it always produces something resolvable.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/llm"
	"github.com/deca/voicecmd/internal/rules"
	"github.com/deca/voicecmd/internal/safety"
	"github.com/deca/voicecmd/pkg/types"
)

// minFragmentRunes filters out splitter fragments too short to carry an
// intent on their own.
const minFragmentRunes = 4

var (
	connectiveRe = regexp.MustCompile(`然后|接着|之后|最后|再(?:帮|给|把)|then|after that|next|finally`)
	splitRe      = regexp.MustCompile(`然后|接着|之后|最后|then|after that|next|finally|[，,。.;；]`)
	clauseRe     = regexp.MustCompile(`[，,。.;；]`)
)

// Resolver resolves utterances into intents or plans.
type Resolver struct {
	parser    *llm.Parser // nil disables the generative strategy
	matcher   *rules.Matcher
	escalator *safety.Escalator
	log       *zap.SugaredLogger
}

// New builds a resolver. Pass a nil parser to run rule-only (testing, or
// the --no-llm mode).
func New(parser *llm.Parser, matcher *rules.Matcher, escalator *safety.Escalator, log *zap.SugaredLogger) *Resolver {
	return &Resolver{parser: parser, matcher: matcher, escalator: escalator, log: log}
}

// Resolve turns text into an Intent or a Plan.
//
// Decision order: generative parse; on failure a dangerous-keyword check
// (which takes precedence over splitting); then the multi-step splitter;
// finally a whole-text rule match.
func (r *Resolver) Resolve(ctx context.Context, text string) llm.Resolution {
	if r.parser != nil {
		res, err := r.parser.Resolve(ctx, text)
		if err == nil {
			if res.IsPlan() {
				plan := r.escalator.EscalatePlan(*res.Plan, text)
				r.log.Infow("llm resolved plan", "steps", len(plan.Steps))
				return llm.Resolution{Plan: &plan}
			}
			intent := r.escalator.Escalate(*res.Intent, text)
			r.log.Infow("llm resolved intent", "intent", intent.Name)
			return llm.Resolution{Intent: &intent}
		}
		r.log.Warnw("llm resolution failed, falling back to rules", "error", err)
	}

	// A dangerous keyword anywhere in the utterance is handled before
	// any splitting: the whole request goes through the confirmation
	// gate as one clarify intent.
	if r.matcher.Dangerous(text) {
		intent := r.matcher.Match(text)
		return llm.Resolution{Intent: &intent}
	}

	if hasMultiStepIndicators(text) {
		if plan, ok := r.splitIntoPlan(text); ok {
			return llm.Resolution{Plan: plan}
		}
	}

	intent := r.matcher.Match(text)
	return llm.Resolution{Intent: &intent}
}

// hasMultiStepIndicators reports whether the text looks like a
// multi-step request: a connective word, or at least two non-trivial
// punctuation-delimited clauses.
func hasMultiStepIndicators(text string) bool {
	if connectiveRe.MatchString(text) {
		return true
	}
	clauses := 0
	for _, c := range clauseRe.Split(text, -1) {
		if len([]rune(strings.TrimSpace(c))) >= minFragmentRunes {
			clauses++
		}
	}
	return clauses >= 2
}

// splitIntoPlan chunks the text on connectives and punctuation and rule-
// matches each surviving fragment independently. Fragments the matcher
// classifies as clarify are treated as noise and dropped. Fewer than two
// usable intents means the split failed.
func (r *Resolver) splitIntoPlan(text string) (*types.Plan, bool) {
	var steps []types.Intent
	for _, frag := range splitRe.Split(text, -1) {
		frag = strings.TrimSpace(frag)
		if len([]rune(frag)) < minFragmentRunes {
			continue
		}
		intent := r.matcher.Match(frag)
		if intent.Name == types.IntentClarify {
			continue
		}
		steps = append(steps, intent)
	}

	if len(steps) < 2 {
		r.log.Debugw("split yielded too few intents", "usable", len(steps))
		return nil, false
	}

	r.log.Infow("split utterance into plan", "steps", len(steps))
	return &types.Plan{
		Steps:   steps,
		Summary: fmt.Sprintf("执行%d个任务", len(steps)),
	}, true
}
