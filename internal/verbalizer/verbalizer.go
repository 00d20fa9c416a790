// Package verbalizer turns intents and execution outcomes into short
// user-facing sentences suitable for spoken feedback. Pure string
// generation, no I/O.
package verbalizer

import (
	"fmt"

	"github.com/deca/voicecmd/pkg/types"
)

// Verbalizer generates natural language responses.
type Verbalizer struct{}

// New creates a verbalizer.
func New() *Verbalizer {
	return &Verbalizer{}
}

// Confirmation is the message spoken before executing an intent. The
// intent's own acknowledgement wins when present.
func (v *Verbalizer) Confirmation(intent types.Intent) string {
	if intent.SpeakBack != "" {
		return intent.SpeakBack
	}

	switch intent.Name {
	case types.IntentSystemSetting:
		setting := intent.StringSlot("setting", "设置")
		value := intent.IntSlot("value", 0)
		return fmt.Sprintf("好的，正在调整%s到%d", setting, value)
	case types.IntentPlayMusic:
		action := intent.StringSlot("action", "播放")
		query := intent.StringSlot("query", "音乐")
		return fmt.Sprintf("好的，%s%s", action, query)
	case types.IntentWebSearch:
		return "好的，帮您搜索" + intent.StringSlot("query", "内容")
	case types.IntentWriteNote:
		return "好的，正在创建笔记：" + intent.StringSlot("title", "笔记")
	case types.IntentControlApp:
		app := intent.StringSlot("app", "应用")
		action := intent.StringSlot("action", "打开")
		return fmt.Sprintf("好的，%s%s", action, app)
	case types.IntentClarify:
		return "抱歉，我没理解您的意思"
	}
	return "好的，正在执行"
}

// Result is the message spoken after executing an intent.
func (v *Verbalizer) Result(intent types.Intent, result types.ExecutionResult) string {
	if !result.Succeeded {
		detail := result.Error
		if detail == "" {
			detail = result.Message
		}
		return "抱歉，操作失败了：" + detail
	}

	switch intent.Name {
	case types.IntentSystemSetting:
		return "设置已完成"
	case types.IntentPlayMusic:
		return "已为您播放"
	case types.IntentWebSearch:
		return "已打开搜索结果"
	case types.IntentWriteNote:
		return "笔记已创建"
	case types.IntentControlApp:
		return "操作已完成"
	}
	return "操作成功"
}

// DryRun describes what would be executed without doing it.
func (v *Verbalizer) DryRun(intent types.Intent) string {
	return fmt.Sprintf("[DRY RUN] 将执行：%s，参数：%v", intent.Name, intent.Slots)
}

// PlanSummary describes a halted or finished plan run for the operator:
// which steps completed, which step failed and why.
func (v *Verbalizer) PlanSummary(steps []types.Intent, results []types.ExecutionResult) string {
	if len(results) == len(steps) && allSucceeded(results) {
		return fmt.Sprintf("已完成全部%d个步骤", len(steps))
	}
	if len(results) == 0 {
		return "计划未执行"
	}
	last := results[len(results)-1]
	if last.Succeeded {
		return fmt.Sprintf("已完成%d个步骤", len(results))
	}
	detail := last.Error
	if detail == "" {
		detail = last.Message
	}
	return fmt.Sprintf("第%d步失败，已停止后续步骤：%s", len(results), detail)
}

func allSucceeded(results []types.ExecutionResult) bool {
	for _, r := range results {
		if !r.Succeeded {
			return false
		}
	}
	return true
}
