package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deca/voicecmd/pkg/types"
)

func TestMatchVolume(t *testing.T) {
	m := NewMatcher()

	intent := m.Match("把音量调到50%")
	assert.Equal(t, types.IntentSystemSetting, intent.Name)
	assert.Equal(t, "volume", intent.Slots["setting"])
	assert.Equal(t, 50, intent.Slots["value"])
	assert.Equal(t, types.RiskLow, intent.Safety.Risk)
	assert.False(t, intent.Confirm)
}

func TestMatchDangerous(t *testing.T) {
	m := NewMatcher()

	tests := []string{
		"删除所有文件",
		"format my disk",
		"请把系统格式化",
		"shutdown the machine now",
		"卸载微信",
		"断网",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			intent := m.Match(text)
			assert.Equal(t, types.IntentClarify, intent.Name)
			assert.True(t, intent.Confirm)
			assert.Equal(t, types.RiskHigh, intent.Safety.Risk)
		})
	}
}

func TestDangerousWinsOverIntentPatterns(t *testing.T) {
	m := NewMatcher()

	// "删除" is dangerous even though "笔记" would match write_note.
	intent := m.Match("删除我的笔记")
	assert.Equal(t, types.IntentClarify, intent.Name)
	assert.Equal(t, types.RiskHigh, intent.Safety.Risk)
	assert.True(t, intent.Confirm)
}

func TestMatchIntents(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		text string
		want types.IntentName
	}{
		{"搜索Python教程", types.IntentWebSearch},
		{"记录明天开会", types.IntentWriteNote},
		{"打开Safari", types.IntentControlApp},
		{"播放周杰伦的歌", types.IntentPlayMusic},
		{"把亮度调高一点", types.IntentSystemSetting},
		{"今天天气怎么样", types.IntentClarify},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent := m.Match(tt.text)
			assert.Equal(t, tt.want, intent.Name)
		})
	}
}

func TestMatchSlotExtraction(t *testing.T) {
	m := NewMatcher()

	search := m.Match("搜索Python教程")
	assert.Equal(t, "Python教程", search.Slots["query"])

	note := m.Match("记录明天上午十点开会")
	assert.Equal(t, "明天上午十点开会", note.Slots["body"])
	assert.NotEmpty(t, note.Slots["title"])

	app := m.Match("打开Safari")
	assert.Equal(t, "Safari", app.Slots["app"])
	assert.Equal(t, "open", app.Slots["action"])
}

func TestNoteTitleTruncation(t *testing.T) {
	m := NewMatcher()

	long := "记录这是一条特别特别特别特别特别特别特别特别长的备忘内容需要截断标题"
	intent := m.Match(long)
	require.Equal(t, types.IntentWriteNote, intent.Name)
	title, ok := intent.Slots["title"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len([]rune(title)), 20)
}

func TestMatchDeterministic(t *testing.T) {
	m := NewMatcher()

	inputs := []string{"把音量调到50%", "删除所有文件", "完全无法识别的一句话"}
	for _, text := range inputs {
		first := m.Match(text)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, m.Match(text), "matcher must be deterministic for %q", text)
		}
	}
}

func TestMatchOutputValidates(t *testing.T) {
	m := NewMatcher()

	// Every intent the matcher produces must pass schema validation
	// without modification.
	inputs := []string{
		"把音量调到50%", "搜索Python教程", "记录明天开会",
		"打开Safari", "播放音乐", "删除所有文件", "乱七八糟的话",
	}
	for _, text := range inputs {
		intent := m.Match(text)
		assert.NoError(t, intent.Validate(), "intent for %q", text)
	}
}

func TestNoMatchReturnsClarify(t *testing.T) {
	m := NewMatcher()

	intent := m.Match("呃这句话没有任何关键词")
	assert.Equal(t, types.IntentClarify, intent.Name)
	assert.True(t, intent.Confirm)
	assert.Equal(t, types.RiskLow, intent.Safety.Risk)
	assert.Equal(t, "no matching intent", intent.Safety.Reason)
}

func TestLoadMatcherFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
dangerous:
  - 删除|delete
intents:
  - intent: play_music
    patterns:
      - 播放|play
  - intent: web_search
    patterns:
      - 搜索|search
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := LoadMatcher(path)
	require.NoError(t, err)

	assert.Equal(t, types.IntentPlayMusic, m.Match("播放音乐").Name)
	assert.Equal(t, types.IntentWebSearch, m.Match("搜索天气").Name)
	assert.True(t, m.Dangerous("delete everything"))
	// Patterns absent from the file no longer match.
	assert.Equal(t, types.IntentClarify, m.Match("记录明天开会").Name)
}

func TestLoadMatcherRejectsBadFile(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("dangerous: [x]\nintents:\n  - intent: no_such\n    patterns: [y]\n"), 0o644))
	_, err := LoadMatcher(unknown)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0o644))
	_, err = LoadMatcher(empty)
	assert.Error(t, err)

	_, err = LoadMatcher(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
