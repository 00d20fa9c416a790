package verbalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deca/voicecmd/pkg/types"
)

func TestConfirmationPrefersSpeakBack(t *testing.T) {
	v := New()

	intent := types.Intent{Name: types.IntentWebSearch, SpeakBack: "好的，帮您搜索天气"}
	assert.Equal(t, "好的，帮您搜索天气", v.Confirmation(intent))
}

func TestConfirmationDefaults(t *testing.T) {
	v := New()

	tests := []struct {
		intent types.Intent
		want   string
	}{
		{
			types.Intent{Name: types.IntentSystemSetting, Slots: map[string]any{"setting": "volume", "value": float64(50)}},
			"好的，正在调整volume到50",
		},
		{
			types.Intent{Name: types.IntentWebSearch, Slots: map[string]any{"query": "Python教程"}},
			"好的，帮您搜索Python教程",
		},
		{
			types.Intent{Name: types.IntentControlApp, Slots: map[string]any{"app": "Safari", "action": "打开"}},
			"好的，打开Safari",
		},
		{
			types.Intent{Name: types.IntentClarify},
			"抱歉，我没理解您的意思",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, v.Confirmation(tt.intent))
	}
}

func TestResultMessages(t *testing.T) {
	v := New()
	intent := types.Intent{Name: types.IntentWriteNote}

	ok := types.ExecutionResult{Succeeded: true, Message: "Note created"}
	assert.Equal(t, "笔记已创建", v.Result(intent, ok))

	bad := types.ExecutionResult{Succeeded: false, Message: "Failed", Error: "no such folder"}
	assert.Equal(t, "抱歉，操作失败了：no such folder", v.Result(intent, bad))
}

func TestPlanSummary(t *testing.T) {
	v := New()
	steps := []types.Intent{
		{Name: types.IntentControlApp},
		{Name: types.IntentSystemSetting},
		{Name: types.IntentWebSearch},
	}

	all := []types.ExecutionResult{{Succeeded: true}, {Succeeded: true}, {Succeeded: true}}
	assert.Equal(t, "已完成全部3个步骤", v.PlanSummary(steps, all))

	halted := []types.ExecutionResult{{Succeeded: true}, {Succeeded: false, Error: "boom"}}
	assert.Equal(t, "第2步失败，已停止后续步骤：boom", v.PlanSummary(steps, halted))

	assert.Equal(t, "计划未执行", v.PlanSummary(steps, nil))
}

func TestDryRun(t *testing.T) {
	v := New()
	intent := types.Intent{Name: types.IntentPlayMusic, Slots: map[string]any{"action": "play"}}
	assert.Contains(t, v.DryRun(intent), "DRY RUN")
	assert.Contains(t, v.DryRun(intent), "play_music")
}
