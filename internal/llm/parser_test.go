package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/prompt"
	"github.com/deca/voicecmd/pkg/types"
)

// fakeChatter replays canned responses, one per call.
type fakeChatter struct {
	responses []string
	errs      []error
	calls     int
	messages  [][]Message
}

func (f *fakeChatter) ChatCompletion(_ context.Context, messages []Message) (string, error) {
	i := f.calls
	f.calls++
	f.messages = append(f.messages, messages)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func newTestParser(chatter Chatter, retries int) *Parser {
	prompts := prompt.New("testdata-does-not-exist", zap.NewNop().Sugar())
	return NewParser(chatter, prompts, retries, zap.NewNop().Sugar())
}

const validIntentJSON = `{"intent":"system_setting","slots":{"setting":"volume","value":50},"requires_confirmation":false,"spoken_acknowledgement":"好的","safety":{"risk":"low","reason":""}}`

func TestResolveIntent(t *testing.T) {
	chatter := &fakeChatter{responses: []string{validIntentJSON}}
	p := newTestParser(chatter, 2)

	res, err := p.Resolve(context.Background(), "把音量调到50%")
	require.NoError(t, err)
	require.False(t, res.IsPlan())
	assert.Equal(t, types.IntentSystemSetting, res.Intent.Name)
	assert.Equal(t, 1, chatter.calls)
}

func TestResolveFencedJSON(t *testing.T) {
	fenced := "```json\n" + validIntentJSON + "\n```"
	bare := &fakeChatter{responses: []string{validIntentJSON}}
	wrapped := &fakeChatter{responses: []string{fenced}}

	p1 := newTestParser(bare, 2)
	p2 := newTestParser(wrapped, 2)

	r1, err := p1.Resolve(context.Background(), "x")
	require.NoError(t, err)
	r2, err := p2.Resolve(context.Background(), "x")
	require.NoError(t, err)

	assert.Equal(t, *r1.Intent, *r2.Intent)
}

func TestResolveJSONWithSurroundingProse(t *testing.T) {
	chatter := &fakeChatter{responses: []string{
		"Sure! Here is the command:\n" + validIntentJSON + "\nLet me know if you need anything else.",
	}}
	p := newTestParser(chatter, 2)

	res, err := p.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSystemSetting, res.Intent.Name)
}

func TestResolvePlan(t *testing.T) {
	planJSON := `{"steps":[` + validIntentJSON + `,` + validIntentJSON + `],"summary":"两步"}`
	chatter := &fakeChatter{responses: []string{planJSON}}
	p := newTestParser(chatter, 2)

	res, err := p.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, res.IsPlan())
	assert.Len(t, res.Plan.Steps, 2)
	assert.Equal(t, "两步", res.Plan.Summary)
}

func TestResolveRetriesWithCorrectivePrompt(t *testing.T) {
	chatter := &fakeChatter{responses: []string{"this is not json at all", validIntentJSON}}
	p := newTestParser(chatter, 2)

	res, err := p.Resolve(context.Background(), "把音量调到50%")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSystemSetting, res.Intent.Name)
	require.Equal(t, 2, chatter.calls)

	// The second attempt carries the corrective follow-up, not the
	// original few-shot prompt.
	second := chatter.messages[1]
	require.Len(t, second, 2)
	assert.Contains(t, second[1].Content, "previous output was invalid")
}

func TestResolveExhaustsRetries(t *testing.T) {
	chatter := &fakeChatter{responses: []string{"garbage", "more garbage"}}
	p := newTestParser(chatter, 2)

	_, err := p.Resolve(context.Background(), "x")
	require.Error(t, err)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, FailParse, lerr.Kind)
	assert.Equal(t, 2, chatter.calls)
}

func TestResolveValidationFailure(t *testing.T) {
	bad := `{"intent":"make_coffee","slots":{}}`
	chatter := &fakeChatter{responses: []string{bad, bad}}
	p := newTestParser(chatter, 2)

	_, err := p.Resolve(context.Background(), "x")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, FailValidation, lerr.Kind)
}

func TestResolveServiceError(t *testing.T) {
	boom := fmt.Errorf("chat API returned status 500")
	chatter := &fakeChatter{errs: []error{boom, boom}}
	p := newTestParser(chatter, 2)

	_, err := p.Resolve(context.Background(), "x")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, FailService, lerr.Kind)
}

func TestResolveTimeoutClassified(t *testing.T) {
	chatter := &fakeChatter{errs: []error{
		fmt.Errorf("do request: %w", context.DeadlineExceeded),
		fmt.Errorf("do request: %w", context.DeadlineExceeded),
	}}
	p := newTestParser(chatter, 2)

	_, err := p.Resolve(context.Background(), "x")
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, FailTimeout, lerr.Kind)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"bare object", `{"a":1}`, true},
		{"fenced object", "```json\n{\"a\":1}\n```", true},
		{"prose around object", `prefix {"a":1} suffix`, true},
		{"no braces", "nothing here", false},
		{"unbalanced", "{ not valid", false},
		{"invalid json in span", "{a:1}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
