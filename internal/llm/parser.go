package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/prompt"
	"github.com/deca/voicecmd/pkg/types"
)

// FailKind classifies why a generative resolution failed, so the plan
// resolver can choose its fallback without string-matching errors.
type FailKind int

const (
	FailTimeout FailKind = iota
	FailService
	FailParse
	FailValidation
)

func (k FailKind) String() string {
	switch k {
	case FailTimeout:
		return "timeout"
	case FailService:
		return "service_error"
	case FailParse:
		return "parse_error"
	case FailValidation:
		return "validation_error"
	}
	return "unknown"
}

// Error is a typed generative-parser failure.
type Error struct {
	Kind FailKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolution is the parser's output: exactly one of Intent or Plan is
// set.
type Resolution struct {
	Intent *types.Intent
	Plan   *types.Plan
}

// IsPlan reports whether the resolution is a multi-step plan.
func (r Resolution) IsPlan() bool { return r.Plan != nil }

// Parser turns an utterance into a validated Intent or Plan through the
// generative service, retrying once with a corrective prompt before
// giving up. It performs no rule-based fallback itself.
type Parser struct {
	chatter    Chatter
	prompts    *prompt.Assembler
	maxRetries int
	log        *zap.SugaredLogger
}

// NewParser builds a parser around an injected chat client.
func NewParser(chatter Chatter, prompts *prompt.Assembler, maxRetries int, log *zap.SugaredLogger) *Parser {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Parser{chatter: chatter, prompts: prompts, maxRetries: maxRetries, log: log}
}

// Resolve asks the model for a structured payload and validates it.
// Each attempt rebuilds the prompt fresh; conversation state never
// accumulates across retries. The returned error is always *Error.
func (p *Parser) Resolve(ctx context.Context, text string) (Resolution, error) {
	userMessage := p.prompts.UserMessage(text)

	var lastErr *Error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		p.log.Infow("llm resolve attempt", "attempt", attempt+1, "max", p.maxRetries)

		messages := []Message{
			{Role: "system", Content: p.prompts.System()},
			{Role: "user", Content: userMessage},
		}

		raw, err := p.chatter.ChatCompletion(ctx, messages)
		if err != nil {
			lastErr = classify(err)
			p.log.Warnw("llm call failed", "kind", lastErr.Kind.String(), "error", err)
			// Service failures retry with the original prompt; only an
			// invalid payload earns the corrective follow-up.
			continue
		}

		res, perr := decode(raw)
		if perr == nil {
			return res, nil
		}
		lastErr = perr
		p.log.Warnw("llm output rejected", "kind", perr.Kind.String(), "error", perr.Err, "raw", raw)
		userMessage = p.prompts.Corrective(text)
	}

	if lastErr == nil {
		lastErr = &Error{Kind: FailService, Err: errors.New("no attempts made")}
	}
	return Resolution{}, lastErr
}

// classify maps transport errors onto failure kinds.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: FailTimeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: FailTimeout, Err: err}
	}
	return &Error{Kind: FailService, Err: err}
}

// decode extracts the JSON payload from the raw model response and
// validates it against the command schema.
func decode(raw string) (Resolution, *Error) {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return Resolution{}, &Error{Kind: FailParse, Err: errors.New("no JSON object in response")}
	}

	// Probe for the plan wrapper before committing to a shape.
	var probe struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Resolution{}, &Error{Kind: FailParse, Err: err}
	}

	if len(probe.Steps) > 0 {
		var plan types.Plan
		if err := json.Unmarshal(payload, &plan); err != nil {
			return Resolution{}, &Error{Kind: FailParse, Err: err}
		}
		if err := plan.Validate(); err != nil {
			return Resolution{}, &Error{Kind: FailValidation, Err: err}
		}
		return Resolution{Plan: &plan}, nil
	}

	var intent types.Intent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return Resolution{}, &Error{Kind: FailParse, Err: err}
	}
	if err := intent.Validate(); err != nil {
		return Resolution{}, &Error{Kind: FailValidation, Err: err}
	}
	return Resolution{Intent: &intent}, nil
}

// ExtractJSON recovers a JSON object from free text. Markdown code
// fences are stripped first, then the widest span between the first '{'
// and the last '}' is taken, tolerating prose the model may emit around
// the payload despite instructions.
func ExtractJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		var kept []string
		inFence := false
		for _, line := range strings.Split(text, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inFence = !inFence
				continue
			}
			kept = append(kept, line)
		}
		text = strings.Join(kept, "\n")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}
