// Package types defines the command schema shared by every stage of the
// pipeline: Intent, Plan and ExecutionResult, plus their validation rules.
// It contains no execution logic.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// IntentName is the closed set of commands the assistant understands.
type IntentName string

const (
	IntentSystemSetting IntentName = "system_setting"
	IntentPlayMusic     IntentName = "play_music"
	IntentWebSearch     IntentName = "web_search"
	IntentWriteNote     IntentName = "write_note"
	IntentControlApp    IntentName = "control_app"
	IntentClarify       IntentName = "clarify"
)

// IntentNames lists every valid intent name in a stable order.
var IntentNames = []IntentName{
	IntentSystemSetting,
	IntentPlayMusic,
	IntentWebSearch,
	IntentWriteNote,
	IntentControlApp,
	IntentClarify,
}

// Valid reports whether the name is one of the enumerated intents.
func (n IntentName) Valid() bool {
	for _, v := range IntentNames {
		if n == v {
			return true
		}
	}
	return false
}

// RiskLevel classifies how dangerous an intent is to execute.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether the risk level is one of low, medium or high.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Safety carries the risk classification attached to an Intent.
type Safety struct {
	Risk   RiskLevel `json:"risk"`
	Reason string    `json:"reason,omitempty"`
}

// Intent is a single structured command parsed from an utterance.
type Intent struct {
	Name      IntentName     `json:"intent"`
	Slots     map[string]any `json:"slots,omitempty"`
	Confirm   bool           `json:"requires_confirmation"`
	SpeakBack string         `json:"spoken_acknowledgement,omitempty"`
	Safety    Safety         `json:"safety"`
}

// Validate checks the intent against the schema. Unknown intent names and
// risk levels are validation failures, never a silent pass-through. An
// empty risk is normalized to low.
func (i *Intent) Validate() error {
	if !i.Name.Valid() {
		return fmt.Errorf("unknown intent name: %q", i.Name)
	}
	if i.Safety.Risk == "" {
		i.Safety.Risk = RiskLow
	}
	if !i.Safety.Risk.Valid() {
		return fmt.Errorf("unknown risk level: %q", i.Safety.Risk)
	}
	return nil
}

// StringSlot returns the named slot as a string, or fallback when absent
// or not a string.
func (i Intent) StringSlot(key, fallback string) string {
	if v, ok := i.Slots[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntSlot returns the named slot as an int. JSON numbers and digit
// strings both coerce; anything else yields the fallback.
func (i Intent) IntSlot(key string, fallback int) int {
	switch v := i.Slots[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// DecodeSlots decodes the intent's raw slot map into one of the typed
// views below once the name is known.
func (i Intent) DecodeSlots(out any) error {
	raw, err := json.Marshal(i.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode slots for %s: %w", i.Name, err)
	}
	return nil
}

// SystemSettingSlots are the parameters of a system_setting intent.
type SystemSettingSlots struct {
	Setting string `json:"setting"`
	Value   int    `json:"value"`
}

// PlayMusicSlots are the parameters of a play_music intent.
type PlayMusicSlots struct {
	Action string `json:"action"`
	Query  string `json:"query"`
}

// WebSearchSlots are the parameters of a web_search intent.
type WebSearchSlots struct {
	Query string `json:"query"`
}

// WriteNoteSlots are the parameters of a write_note intent.
type WriteNoteSlots struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ControlAppSlots are the parameters of a control_app intent.
type ControlAppSlots struct {
	App    string `json:"app"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Plan is an ordered sequence of intents making up one multi-step task.
// Step order is execution order.
type Plan struct {
	Steps   []Intent `json:"steps"`
	Summary string   `json:"summary,omitempty"`
}

// Validate checks the plan and every step. An empty plan is invalid.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for idx := range p.Steps {
		if err := p.Steps[idx].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", idx+1, err)
		}
	}
	return nil
}

// ExecutionResult is the outcome of performing one intent. Created by the
// actuator and never mutated afterwards.
type ExecutionResult struct {
	Succeeded bool   `json:"success"`
	Message   string `json:"message"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}
