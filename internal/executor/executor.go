// Package executor is the default actuator: it routes each intent to a
// macOS-specific implementation built on osascript and shell commands.
// The resolution core only sees it through the sequencer's Actuator
// interface.
package executor

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deca/voicecmd/pkg/types"
)

// ActionHandler performs one intent kind.
type ActionHandler func(ctx context.Context, intent types.Intent) types.ExecutionResult

// Executor dispatches intents to registered handlers.
type Executor struct {
	handlers map[types.IntentName]ActionHandler
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// New creates an executor with the default handler set. Every command it
// spawns is bounded by timeout.
func New(timeout time.Duration, log *zap.SugaredLogger) *Executor {
	e := &Executor{
		handlers: make(map[types.IntentName]ActionHandler),
		timeout:  timeout,
		log:      log,
	}

	e.RegisterHandler(types.IntentSystemSetting, e.handleSystemSetting)
	e.RegisterHandler(types.IntentPlayMusic, e.handlePlayMusic)
	e.RegisterHandler(types.IntentWebSearch, e.handleWebSearch)
	e.RegisterHandler(types.IntentWriteNote, e.handleWriteNote)
	e.RegisterHandler(types.IntentControlApp, e.handleControlApp)
	e.RegisterHandler(types.IntentClarify, e.handleClarify)

	return e
}

// RegisterHandler registers or replaces the handler for an intent name.
func (e *Executor) RegisterHandler(name types.IntentName, handler ActionHandler) {
	e.handlers[name] = handler
}

// Execute performs one intent and reports the outcome. It never panics
// and never retries.
func (e *Executor) Execute(ctx context.Context, intent types.Intent) types.ExecutionResult {
	e.log.Infow("executing intent", "intent", intent.Name)

	handler, exists := e.handlers[intent.Name]
	if !exists {
		return types.ExecutionResult{
			Succeeded: false,
			Message:   fmt.Sprintf("Unknown intent: %s", intent.Name),
			Error:     "intent not implemented",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return handler(ctx, intent)
}

func (e *Executor) handleSystemSetting(ctx context.Context, intent types.Intent) types.ExecutionResult {
	var slots types.SystemSettingSlots
	if err := intent.DecodeSlots(&slots); err != nil {
		slots.Setting = intent.StringSlot("setting", "")
		slots.Value = intent.IntSlot("value", 50)
	}

	switch slots.Setting {
	case "volume":
		// macOS output volume is 0-100, same scale as the slot value.
		script := fmt.Sprintf("set volume output volume %d", slots.Value)
		if out, err := e.runOsascript(ctx, script); err != nil {
			return failed("Failed to set volume", err, out)
		}
		return types.ExecutionResult{
			Succeeded: true,
			Message:   fmt.Sprintf("Volume set to %d%%", slots.Value),
		}
	case "mute":
		if out, err := e.runOsascript(ctx, "set volume with output muted"); err != nil {
			return failed("Failed to mute", err, out)
		}
		return types.ExecutionResult{Succeeded: true, Message: "Muted"}
	}

	return types.ExecutionResult{
		Succeeded: false,
		Message:   fmt.Sprintf("Unknown setting: %s", slots.Setting),
		Error:     "setting not implemented",
	}
}

func (e *Executor) handleWebSearch(ctx context.Context, intent types.Intent) types.ExecutionResult {
	var slots types.WebSearchSlots
	if err := intent.DecodeSlots(&slots); err != nil {
		slots.Query = intent.StringSlot("query", "")
	}
	query := slots.Query
	if query == "" {
		return types.ExecutionResult{
			Succeeded: false,
			Message:   "No query provided",
			Error:     "missing query parameter",
		}
	}

	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(query)
	if out, err := e.openTarget(ctx, searchURL); err != nil {
		return failed("Failed to open browser", err, out)
	}
	return types.ExecutionResult{
		Succeeded: true,
		Message:   fmt.Sprintf("Opened search for: %s", query),
	}
}

func (e *Executor) handleWriteNote(ctx context.Context, intent types.Intent) types.ExecutionResult {
	var slots types.WriteNoteSlots
	if err := intent.DecodeSlots(&slots); err != nil {
		slots.Title = intent.StringSlot("title", "")
		slots.Body = intent.StringSlot("body", "")
	}
	title := slots.Title
	if title == "" {
		title = "Quick Note"
	}
	body := slots.Body

	script := fmt.Sprintf(
		`tell application "Notes" to make new note at folder "Notes" with properties {name:%q, body:%q}`,
		title, body,
	)
	if out, err := e.runOsascript(ctx, script); err != nil {
		return failed("Failed to create note", err, out)
	}
	return types.ExecutionResult{
		Succeeded: true,
		Message:   fmt.Sprintf("Note created: %s", title),
	}
}

func (e *Executor) handleControlApp(ctx context.Context, intent types.Intent) types.ExecutionResult {
	var slots types.ControlAppSlots
	if err := intent.DecodeSlots(&slots); err != nil {
		slots.App = intent.StringSlot("app", "")
		slots.Action = intent.StringSlot("action", "")
		slots.URL = intent.StringSlot("url", "")
	}
	app := slots.App
	action := slots.Action
	if action == "" {
		action = "open"
	}

	if app == "" {
		return types.ExecutionResult{
			Succeeded: false,
			Message:   "No app specified",
			Error:     "missing app parameter",
		}
	}

	switch action {
	case "open", "open_url":
		if u := slots.URL; u != "" {
			if out, err := e.openTarget(ctx, u); err != nil {
				return failed(fmt.Sprintf("Failed to open %s", u), err, out)
			}
			return types.ExecutionResult{Succeeded: true, Message: fmt.Sprintf("Opened %s in %s", u, app)}
		}
		if out, err := e.openApp(ctx, app); err != nil {
			return failed(fmt.Sprintf("Failed to open %s", app), err, out)
		}
		return types.ExecutionResult{Succeeded: true, Message: fmt.Sprintf("Opened %s", app)}

	case "quit", "close":
		script := fmt.Sprintf(`tell application %q to quit`, app)
		if out, err := e.runOsascript(ctx, script); err != nil {
			return failed(fmt.Sprintf("Failed to quit %s", app), err, out)
		}
		return types.ExecutionResult{Succeeded: true, Message: fmt.Sprintf("Quit %s", app)}
	}

	return types.ExecutionResult{
		Succeeded: false,
		Message:   fmt.Sprintf("Unknown action: %s", action),
		Error:     "action not implemented",
	}
}

func (e *Executor) handlePlayMusic(ctx context.Context, intent types.Intent) types.ExecutionResult {
	var slots types.PlayMusicSlots
	if err := intent.DecodeSlots(&slots); err != nil {
		slots.Action = intent.StringSlot("action", "")
	}
	action := slots.Action
	if action == "" {
		action = "play"
	}

	var script string
	switch action {
	case "play":
		script = `tell application "Music" to play`
	case "pause":
		script = `tell application "Music" to pause`
	case "next":
		script = `tell application "Music" to next track`
	case "previous":
		script = `tell application "Music" to previous track`
	default:
		return types.ExecutionResult{
			Succeeded: false,
			Message:   fmt.Sprintf("Unknown music action: %s", action),
			Error:     "action not supported",
		}
	}

	if out, err := e.runOsascript(ctx, script); err != nil {
		return failed(fmt.Sprintf("Failed to %s music", action), err, out)
	}
	return types.ExecutionResult{
		Succeeded: true,
		Message:   fmt.Sprintf("Music %s executed", action),
	}
}

func (e *Executor) handleClarify(ctx context.Context, intent types.Intent) types.ExecutionResult {
	message := intent.SpeakBack
	if message == "" {
		message = "抱歉，我没有理解您的意思，能否请您再说一遍？"
	}
	return types.ExecutionResult{
		Succeeded: true,
		Message:   "Clarification needed",
		Output:    message,
	}
}

// runOsascript executes an inline AppleScript snippet.
func (e *Executor) runOsascript(ctx context.Context, script string) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("osascript requires macOS, running on %s", runtime.GOOS)
	}
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// openTarget opens a URL with the platform opener.
func (e *Executor) openTarget(ctx context.Context, target string) (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// openApp launches an application by name.
func (e *Executor) openApp(ctx context.Context, app string) (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", "-a", app)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", app)
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func failed(message string, err error, out string) types.ExecutionResult {
	detail := err.Error()
	if out != "" {
		detail = fmt.Sprintf("%v: %s", err, out)
	}
	return types.ExecutionResult{
		Succeeded: false,
		Message:   message,
		Error:     detail,
	}
}
