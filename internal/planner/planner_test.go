package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/rules"
	"github.com/deca/voicecmd/internal/safety"
	"github.com/deca/voicecmd/pkg/types"
)

// ruleOnlyResolver builds a resolver with the generative strategy
// disabled, exercising the fallback path directly.
func ruleOnlyResolver() *Resolver {
	matcher := rules.NewMatcher()
	return New(nil, matcher, safety.New(matcher, true), zap.NewNop().Sugar())
}

func TestResolveSingleIntent(t *testing.T) {
	r := ruleOnlyResolver()

	res := r.Resolve(context.Background(), "把音量调到50%")
	require.False(t, res.IsPlan())
	assert.Equal(t, types.IntentSystemSetting, res.Intent.Name)
}

func TestResolveMultiStepWithConnective(t *testing.T) {
	r := ruleOnlyResolver()

	res := r.Resolve(context.Background(), "打开Safari，然后把音量调到50%")
	require.True(t, res.IsPlan())
	require.Len(t, res.Plan.Steps, 2)
	assert.Equal(t, types.IntentControlApp, res.Plan.Steps[0].Name)
	assert.Equal(t, types.IntentSystemSetting, res.Plan.Steps[1].Name)
	assert.NotEmpty(t, res.Plan.Summary)
}

func TestResolveSplitDropsNoiseFragments(t *testing.T) {
	r := ruleOnlyResolver()

	// The middle clause matches nothing and is treated as noise.
	res := r.Resolve(context.Background(), "播放音乐，嗯就这样吧，然后搜索Python教程")
	require.True(t, res.IsPlan())
	require.Len(t, res.Plan.Steps, 2)
	assert.Equal(t, types.IntentPlayMusic, res.Plan.Steps[0].Name)
	assert.Equal(t, types.IntentWebSearch, res.Plan.Steps[1].Name)
}

func TestResolveDangerousBeforeSplitting(t *testing.T) {
	r := ruleOnlyResolver()

	// Contains both a connective and a dangerous keyword: the dangerous
	// check wins and the whole utterance becomes one gated clarify.
	res := r.Resolve(context.Background(), "打开Finder，然后删除所有文件")
	require.False(t, res.IsPlan())
	assert.Equal(t, types.IntentClarify, res.Intent.Name)
	assert.Equal(t, types.RiskHigh, res.Intent.Safety.Risk)
	assert.True(t, res.Intent.Confirm)
}

func TestResolveSplitTooFewFallsBack(t *testing.T) {
	r := ruleOnlyResolver()

	// Connective present but only one clause rule-matches: fall back to
	// a single whole-text match.
	res := r.Resolve(context.Background(), "打开Safari，然后嗯那个")
	require.False(t, res.IsPlan())
	assert.Equal(t, types.IntentControlApp, res.Intent.Name)
}

func TestResolveNoMatchYieldsClarify(t *testing.T) {
	r := ruleOnlyResolver()

	res := r.Resolve(context.Background(), "唔这句话完全没有关键词")
	require.False(t, res.IsPlan())
	assert.Equal(t, types.IntentClarify, res.Intent.Name)
	assert.True(t, res.Intent.Confirm)
}

func TestHasMultiStepIndicators(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"打开Safari，然后把音量调到50%", true},
		{"first do this, after that do the other thing", true},
		{"播放音乐，顺便搜索一下天气预报", true}, // two non-trivial clauses
		{"把音量调到50%", false},
		{"好的", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, hasMultiStepIndicators(tt.text))
		})
	}
}
