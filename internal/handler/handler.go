// Package handler exposes the resolution pipeline over HTTP: plain
// request/response endpoints for text utterances and a websocket channel
// for interactive, confirmation-gated sessions.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/config"
	"github.com/deca/voicecmd/internal/llm"
	"github.com/deca/voicecmd/internal/planner"
	"github.com/deca/voicecmd/internal/sequencer"
	"github.com/deca/voicecmd/internal/session"
	"github.com/deca/voicecmd/internal/verbalizer"
	"github.com/deca/voicecmd/pkg/types"
)

// Handler handles HTTP requests.
type Handler struct {
	cfg      *config.Config
	resolver *planner.Resolver
	actuator sequencer.Actuator
	verbal   *verbalizer.Verbalizer
	sessions *session.Store
	log      *zap.SugaredLogger
}

// New creates a handler around the resolution pipeline.
func New(cfg *config.Config, resolver *planner.Resolver, actuator sequencer.Actuator, sessions *session.Store, log *zap.SugaredLogger) *Handler {
	return &Handler{
		cfg:      cfg,
		resolver: resolver,
		actuator: actuator,
		verbal:   verbalizer.New(),
		sessions: sessions,
		log:      log,
	}
}

// autoConfirmer answers every confirmation gate with a fixed decision.
// Plain HTTP requests are not interactive, so the default is to deny and
// report which step wanted confirmation; clients opt in with
// auto_confirm.
type autoConfirmer struct {
	allow bool
}

func (a autoConfirmer) Ask(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.allow, nil
}

type textRequest struct {
	Text        string `json:"text" binding:"required"`
	SessionID   string `json:"session_id"`
	AutoConfirm bool   `json:"auto_confirm"`
	DryRun      bool   `json:"dry_run"`
}

type textResponse struct {
	SessionID string            `json:"session_id"`
	Intent    *types.Intent     `json:"intent,omitempty"`
	Plan      *types.Plan       `json:"plan,omitempty"`
	Report    *sequencer.Report `json:"report"`
	Reply     string            `json:"reply"`
	Success   bool              `json:"success"`
}

// TextInteraction resolves an utterance and runs it through the gated
// sequencer.
func (h *Handler) TextInteraction(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求参数错误"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	resp := h.process(c.Request.Context(), req)
	c.JSON(http.StatusOK, resp)
}

// ResolveOnly resolves an utterance and previews it in dry mode without
// touching the actuator.
func (h *Handler) ResolveOnly(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求参数错误"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	req.DryRun = true

	resp := h.process(c.Request.Context(), req)
	c.JSON(http.StatusOK, resp)
}

// process runs the full resolve-then-sequence pipeline for one
// utterance.
func (h *Handler) process(ctx context.Context, req textRequest) textResponse {
	res := h.resolver.Resolve(ctx, req.Text)

	seq := sequencer.New(h.actuator, autoConfirmer{allow: req.AutoConfirm}, req.DryRun || h.cfg.DryRun, h.log)

	var report sequencer.Report
	if res.IsPlan() {
		report = seq.RunPlan(ctx, *res.Plan)
	} else {
		report = seq.RunIntent(ctx, *res.Intent)
	}
	reply := h.replyFor(res, report)
	if report.Status != sequencer.RunCompleted && report.Reason != "" {
		reply = reply + "（" + report.Reason + "）"
	}

	h.record(req.SessionID, req.Text, res, reply)

	return textResponse{
		SessionID: req.SessionID,
		Intent:    res.Intent,
		Plan:      res.Plan,
		Report:    &report,
		Reply:     reply,
		Success:   report.Status == sequencer.RunCompleted,
	}
}

// record appends the exchange to the session transcript. Transcript
// failures never fail the request.
func (h *Handler) record(sessionID, userText string, res llm.Resolution, reply string) {
	if h.sessions == nil {
		return
	}
	intentName := ""
	if res.Intent != nil {
		intentName = string(res.Intent.Name)
	} else if res.Plan != nil && len(res.Plan.Steps) > 0 {
		intentName = "plan"
	}
	if err := h.sessions.Append(sessionID, session.Message{Role: "user", Content: userText, Intent: intentName}); err != nil {
		h.log.Warnw("failed to record user message", "error", err)
	}
	if err := h.sessions.Append(sessionID, session.Message{Role: "assistant", Content: reply}); err != nil {
		h.log.Warnw("failed to record assistant message", "error", err)
	}
}

// History returns a session transcript.
func (h *Handler) History(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session storage disabled"})
		return
	}
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}
