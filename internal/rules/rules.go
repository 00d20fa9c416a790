// Package rules implements the deterministic keyword matcher. It is a
// pure, total function of the input text: the same utterance always
// produces the same Intent, which makes it both the fallback strategy
// behind the generative parser and the shared dangerous-operation
// detector.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deca/voicecmd/pkg/types"
)

// IntentRule is one entry of the ordered pattern table. The first rule
// whose pattern list matches wins; order is significant.
type IntentRule struct {
	Name     types.IntentName
	Patterns []*regexp.Regexp
}

// defaultDangerousPatterns flag operations that must never run without
// an explicit confirmation, in Chinese and English.
var defaultDangerousPatterns = []string{
	`删除|delete|remove`,
	`清空|清除|clear|wipe`,
	`格式化|format`,
	`关闭.*网络|断网|disconnect`,
	`重启|关机|shutdown|restart`,
	`卸载|uninstall`,
}

// defaultIntentPatterns is the built-in pattern table. Order matters:
// earlier intents take precedence when several would match.
var defaultIntentPatterns = []struct {
	name     types.IntentName
	patterns []string
}{
	{types.IntentSystemSetting, []string{
		`音量|声音|volume`,
		`亮度|brightness`,
		`截图|screenshot`,
		`静音|mute`,
	}},
	{types.IntentPlayMusic, []string{
		`播放|play`,
		`暂停|pause`,
		`音乐|歌曲|music|song`,
		`下一首|上一首|next|previous`,
	}},
	{types.IntentWebSearch, []string{
		`搜索|查找|search|google|百度`,
		`找一下|查一下`,
	}},
	{types.IntentWriteNote, []string{
		`记录|笔记|备忘|note|memo`,
		`写下|记下`,
	}},
	{types.IntentControlApp, []string{
		`打开.*应用|打开.*app|open.*app`,
		`启动|关闭|quit`,
		`safari|chrome|微信|wechat`,
	}},
}

// Slot extraction patterns.
var (
	volumeRe    = regexp.MustCompile(`(\d+)\s*%|音量[^\d]*(\d+)`)
	searchRe    = regexp.MustCompile(`(?i)(?:搜索|查找|search)\s*(.+)`)
	noteRe      = regexp.MustCompile(`(?i)(?:记录|笔记|note)\s*[:：]?\s*(.+)`)
	openAppRe   = regexp.MustCompile(`打开\s*([\p{Han}A-Za-z0-9_]+)`)
	openAppEnRe = regexp.MustCompile(`(?i)open\s+([A-Za-z0-9_]+)`)
)

// Matcher matches utterances against the pattern tables. The compiled
// tables are read-only after construction and safe for concurrent use.
type Matcher struct {
	dangerous []*regexp.Regexp
	intents   []IntentRule
}

// ruleFile is the YAML shape of an external pattern-table override.
type ruleFile struct {
	Dangerous []string `yaml:"dangerous"`
	Intents   []struct {
		Intent   string   `yaml:"intent"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"intents"`
}

// NewMatcher builds a matcher from the built-in pattern tables.
func NewMatcher() *Matcher {
	m := &Matcher{}
	for _, p := range defaultDangerousPatterns {
		m.dangerous = append(m.dangerous, regexp.MustCompile(`(?i)`+p))
	}
	for _, e := range defaultIntentPatterns {
		rule := IntentRule{Name: e.name}
		for _, p := range e.patterns {
			rule.Patterns = append(rule.Patterns, regexp.MustCompile(`(?i)`+p))
		}
		m.intents = append(m.intents, rule)
	}
	return m
}

// LoadMatcher builds a matcher from a YAML rule file. The file fully
// replaces the built-in tables; list order in the file is the match
// precedence.
func LoadMatcher(path string) (*Matcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	m := &Matcher{}
	for _, p := range rf.Dangerous {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("dangerous pattern %q: %w", p, err)
		}
		m.dangerous = append(m.dangerous, re)
	}
	for _, entry := range rf.Intents {
		name := types.IntentName(entry.Intent)
		if !name.Valid() {
			return nil, fmt.Errorf("unknown intent %q in rules file", entry.Intent)
		}
		rule := IntentRule{Name: name}
		for _, p := range entry.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("pattern %q for %s: %w", p, name, err)
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		m.intents = append(m.intents, rule)
	}
	if len(m.dangerous) == 0 || len(m.intents) == 0 {
		return nil, fmt.Errorf("rules file must define both dangerous and intent patterns")
	}
	return m, nil
}

// Dangerous reports whether the text contains a dangerous-operation
// keyword. Shared with the safety escalator.
func (m *Matcher) Dangerous(text string) bool {
	for _, re := range m.dangerous {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Match classifies an utterance into an Intent. It never fails: when
// nothing matches it returns a clarify intent asking the user to rephrase.
// A dangerous keyword short-circuits everything else.
func (m *Matcher) Match(text string) types.Intent {
	if m.Dangerous(text) {
		return types.Intent{
			Name:      types.IntentClarify,
			Confirm:   true,
			SpeakBack: fmt.Sprintf("您确定要执行「%s」吗？这可能有风险。", text),
			Safety:    types.Safety{Risk: types.RiskHigh, Reason: "dangerous operation detected"},
		}
	}

	for _, rule := range m.intents {
		for _, re := range rule.Patterns {
			if re.MatchString(text) {
				slots := extractSlots(text, rule.Name)
				return types.Intent{
					Name:      rule.Name,
					Slots:     slots,
					SpeakBack: "好的，" + acknowledgement(rule.Name, slots),
					Safety:    types.Safety{Risk: types.RiskLow},
				}
			}
		}
	}

	return types.Intent{
		Name:      types.IntentClarify,
		Confirm:   true,
		SpeakBack: "抱歉，我不太理解您的意思，能具体说说吗？",
		Safety:    types.Safety{Risk: types.RiskLow, Reason: "no matching intent"},
	}
}

// extractSlots pulls intent-specific parameters out of the raw text.
func extractSlots(text string, name types.IntentName) map[string]any {
	slots := map[string]any{}

	switch name {
	case types.IntentSystemSetting:
		if g := volumeRe.FindStringSubmatch(text); g != nil {
			digits := g[1]
			if digits == "" {
				digits = g[2]
			}
			if v, err := strconv.Atoi(digits); err == nil {
				slots["setting"] = "volume"
				slots["value"] = v
			}
		}

	case types.IntentWebSearch:
		if g := searchRe.FindStringSubmatch(text); g != nil {
			slots["query"] = strings.TrimSpace(g[1])
		} else {
			slots["query"] = text
		}

	case types.IntentWriteNote:
		if g := noteRe.FindStringSubmatch(text); g != nil {
			content := strings.TrimSpace(g[1])
			slots["title"] = truncate(content, 20)
			slots["body"] = content
		} else {
			slots["title"] = "Quick Note"
			slots["body"] = text
		}

	case types.IntentControlApp:
		if g := openAppRe.FindStringSubmatch(text); g != nil {
			slots["app"] = g[1]
			slots["action"] = "open"
		} else if g := openAppEnRe.FindStringSubmatch(text); g != nil {
			slots["app"] = g[1]
			slots["action"] = "open"
		}
	}

	if len(slots) == 0 {
		return nil
	}
	return slots
}

// acknowledgement builds the default spoken confirmation for a matched
// intent.
func acknowledgement(name types.IntentName, slots map[string]any) string {
	switch name {
	case types.IntentSystemSetting:
		if slots["setting"] == "volume" {
			return fmt.Sprintf("把音量调到%v%%", slots["value"])
		}
	case types.IntentWebSearch:
		if q, ok := slots["query"].(string); ok {
			return "搜索" + q
		}
		return "搜索内容"
	case types.IntentWriteNote:
		return "创建笔记"
	case types.IntentControlApp:
		app, _ := slots["app"].(string)
		if app == "" {
			app = "应用"
		}
		return "打开" + app
	case types.IntentPlayMusic:
		return "为您播放音乐"
	}
	return "执行操作"
}

// truncate trims s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
