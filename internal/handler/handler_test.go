package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/config"
	"github.com/deca/voicecmd/internal/planner"
	"github.com/deca/voicecmd/internal/rules"
	"github.com/deca/voicecmd/internal/safety"
	"github.com/deca/voicecmd/internal/sequencer"
	"github.com/deca/voicecmd/pkg/types"
)

// recordingActuator records every executed intent and always succeeds.
type recordingActuator struct {
	executed []types.Intent
}

func (r *recordingActuator) Execute(_ context.Context, intent types.Intent) types.ExecutionResult {
	r.executed = append(r.executed, intent)
	return types.ExecutionResult{Succeeded: true, Message: "done"}
}

func newTestRouter(t *testing.T) (*gin.Engine, *recordingActuator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	matcher := rules.NewMatcher()
	resolver := planner.New(nil, matcher, safety.New(matcher, true), zap.NewNop().Sugar())
	act := &recordingActuator{}
	h := New(&config.Config{}, resolver, act, nil, zap.NewNop().Sugar())

	r := gin.New()
	r.GET("/api/health", h.HealthCheck)
	r.POST("/api/text", h.TextInteraction)
	r.POST("/api/resolve", h.ResolveOnly)
	return r, act
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestTextInteractionExecutes(t *testing.T) {
	r, act := newTestRouter(t)

	w, resp := postJSON(t, r, "/api/text", `{"text":"把音量调到50%"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["session_id"])

	require.Len(t, act.executed, 1)
	assert.Equal(t, types.IntentSystemSetting, act.executed[0].Name)
}

func TestTextInteractionDeniesConfirmationByDefault(t *testing.T) {
	r, act := newTestRouter(t)

	// A dangerous utterance resolves to a gated clarify; without
	// auto_confirm the request is denied rather than executed.
	w, resp := postJSON(t, r, "/api/text", `{"text":"删除所有文件"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Empty(t, act.executed)

	report := resp["report"].(map[string]any)
	assert.Equal(t, string(sequencer.RunAborted), report["status"])
}

func TestTextInteractionAutoConfirm(t *testing.T) {
	r, act := newTestRouter(t)

	_, resp := postJSON(t, r, "/api/text", `{"text":"删除所有文件","auto_confirm":true}`)
	assert.Equal(t, true, resp["success"])
	assert.Len(t, act.executed, 1)
}

func TestResolveOnlyNeverExecutes(t *testing.T) {
	r, act := newTestRouter(t)

	w, resp := postJSON(t, r, "/api/resolve", `{"text":"把音量调到50%"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Empty(t, act.executed, "resolve endpoint must stay dry")

	intent := resp["intent"].(map[string]any)
	assert.Equal(t, "system_setting", intent["intent"])
}

func TestTextInteractionRejectsMissingText(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := postJSON(t, r, "/api/text", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
