package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deca/voicecmd/internal/llm"
	"github.com/deca/voicecmd/internal/sequencer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The CORS middleware already gates the HTTP surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Inbound websocket message types.
const (
	msgUtterance    = "utterance"
	msgConfirmReply = "confirm_reply"
	msgCancel       = "cancel"
)

// Outbound websocket message types.
const (
	msgResolved = "resolved"
	msgConfirm  = "confirm"
	msgReport   = "report"
	msgError    = "error"
)

type wsInbound struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}

type wsOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsConfirmer routes confirmation gates over the websocket: it sends a
// confirm frame and suspends until the client replies or the run is
// cancelled.
type wsConfirmer struct {
	send    func(wsOutbound) error
	replies <-chan bool
}

func (w *wsConfirmer) Ask(ctx context.Context, prompt string) (bool, error) {
	if err := w.send(wsOutbound{Type: msgConfirm, Prompt: prompt}); err != nil {
		return false, err
	}
	select {
	case accept, ok := <-w.replies:
		if !ok {
			return false, context.Canceled
		}
		return accept, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Stream upgrades the connection and runs an interactive session: the
// client streams utterances, the server streams resolutions, confirmation
// prompts and run reports. One utterance is processed to completion
// before the next is accepted.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	send := func(msg wsOutbound) error {
		msg.SessionID = sessionID
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	}

	inbox := make(chan wsInbound)
	go func() {
		defer close(inbox)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg wsInbound
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			inbox <- msg
		}
	}()

	for msg := range inbox {
		if msg.Type != msgUtterance {
			continue
		}
		if msg.Text == "" {
			send(wsOutbound{Type: msgError, Error: "empty utterance"})
			continue
		}
		h.streamUtterance(c.Request.Context(), sessionID, msg.Text, send, inbox)
	}
}

// streamUtterance resolves and executes one utterance, pumping inbox
// messages into confirmation replies and cancellation while the run is
// in flight.
func (h *Handler) streamUtterance(parent context.Context, sessionID, text string, send func(wsOutbound) error, inbox <-chan wsInbound) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	res := h.resolver.Resolve(ctx, text)
	send(wsOutbound{Type: msgResolved, Payload: res})

	// Buffered by one so a reply arriving between the confirm frame and
	// the gate's select is held rather than dropped.
	replies := make(chan bool, 1)
	confirmer := &wsConfirmer{send: send, replies: replies}
	seq := sequencer.New(h.actuator, confirmer, h.cfg.DryRun, h.log)

	done := make(chan sequencer.Report, 1)
	go func() {
		if res.IsPlan() {
			done <- seq.RunPlan(ctx, *res.Plan)
		} else {
			done <- seq.RunIntent(ctx, *res.Intent)
		}
	}()

	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				// Client went away: abort the in-flight run.
				cancel()
				<-done
				return
			}
			switch msg.Type {
			case msgConfirmReply:
				select {
				case replies <- msg.Accept:
				default:
					// No gate waiting; drop the stray reply.
				}
			case msgCancel:
				cancel()
			}
		case report := <-done:
			reply := h.replyFor(res, report)
			h.record(sessionID, text, res, reply)
			send(wsOutbound{Type: msgReport, Reply: reply, Payload: report})
			return
		}
	}
}

func (h *Handler) replyFor(res llm.Resolution, report sequencer.Report) string {
	if res.IsPlan() {
		return h.verbal.PlanSummary(res.Plan.Steps, report.Results)
	}
	if len(report.Results) > 0 {
		return h.verbal.Result(*res.Intent, report.Results[0])
	}
	return h.verbal.Confirmation(*res.Intent)
}
