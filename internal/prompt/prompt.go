// Package prompt builds the instruction payloads sent to the generative
// service: system instructions, optional few-shot examples, the user
// message wrapper, and the corrective retry prompt. Everything is loaded
// from the prompts directory at construction time; missing files fall
// back to built-in defaults.
package prompt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultSystemPrompt = `You are a Command Planner for a macOS voice assistant.

Your ONLY job is to output valid JSON. For a single command:
{
  "intent": "system_setting|play_music|web_search|write_note|control_app|clarify",
  "slots": {},
  "requires_confirmation": false,
  "spoken_acknowledgement": "",
  "safety": {"risk": "low|medium|high", "reason": ""}
}

For a multi-step task, wrap the commands in order:
{
  "steps": [ { ...intent objects... } ],
  "summary": "one-line description of the whole task"
}

Rules:
1. Output ONLY minified JSON, no markdown, no prose, no explanations
2. If user request is unsafe/ambiguous -> intent="clarify", requires_confirmation=true, brief spoken_acknowledgement
3. For dangerous operations (delete/format/shutdown) -> safety.risk="high"
4. spoken_acknowledgement should be brief (< 20 words) in the user's language
5. slots contain extracted parameters as key-value pairs`

const correctivePrompt = `The previous output was invalid. Please output ONLY valid JSON matching the schema. User request: %s`

// Example is one few-shot pair loaded from the example store.
type Example struct {
	User      string          `json:"user"`
	Assistant json.RawMessage `json:"assistant"`
}

// Assembler builds prompts. Loaded templates are read-only and safe to
// share across concurrent resolutions.
type Assembler struct {
	system   string
	examples []Example
}

// New loads prompt assets from dir. A missing system.txt falls back to
// the built-in prompt; a missing fewshot.jsonl yields no examples, which
// is not an error.
func New(dir string, log *zap.SugaredLogger) *Assembler {
	a := &Assembler{system: defaultSystemPrompt}

	if raw, err := os.ReadFile(filepath.Join(dir, "system.txt")); err == nil {
		if s := strings.TrimSpace(string(raw)); s != "" {
			a.system = s
		}
	}

	examples, err := loadExamples(filepath.Join(dir, "fewshot.jsonl"))
	if err != nil && log != nil {
		log.Warnw("failed to load few-shot examples", "error", err)
	}
	a.examples = examples

	return a
}

// loadExamples reads JSONL few-shot pairs. An absent file returns an
// empty set with no error; a malformed line fails the whole load.
func loadExamples(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ex Example
		if err := json.Unmarshal([]byte(line), &ex); err != nil {
			return nil, fmt.Errorf("parse fewshot line: %w", err)
		}
		examples = append(examples, ex)
	}
	return examples, scanner.Err()
}

// System returns the system instructions.
func (a *Assembler) System() string {
	return a.system
}

// UserMessage wraps the utterance with the formatted few-shot examples.
func (a *Assembler) UserMessage(text string) string {
	var b strings.Builder
	if len(a.examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range a.examples {
			fmt.Fprintf(&b, "\nUser: %s\nAssistant: %s\n", ex.User, string(ex.Assistant))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Now parse this user request:\nUser: %s\n\nOutput only JSON:", text)
	return b.String()
}

// Corrective returns the follow-up prompt used after an invalid first
// response. It restates the request fresh rather than extending a
// corrupted conversation.
func (a *Assembler) Corrective(text string) string {
	return fmt.Sprintf(correctivePrompt, text)
}

// ExampleCount reports how many few-shot examples were loaded.
func (a *Assembler) ExampleCount() int {
	return len(a.examples)
}
