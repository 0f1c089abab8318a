package toolapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joelkehle/sales-proposal-agency/internal/auth"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
)

const (
	streamRequestTimeout = 30 * time.Second
	streamWriteTimeout   = 10 * time.Second
)

// Bearer tokens, not cookies, authorise this route, so any origin may connect.
// Browsers pass the token as a subprotocol, which must be echoed back.
var upgrader = websocket.Upgrader{
	Subprotocols: []string{auth.WebSocketProtocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

type streamFrame struct {
	Type     string                     `json:"type"`
	Stage    string                     `json:"stage,omitempty"`
	Message  string                     `json:"message,omitempty"`
	Proposal *proposal.ResponseEnvelope `json:"proposal,omitempty"`
	Error    map[string]any             `json:"error,omitempty"`
}

// handleStreamProposal runs the pipeline for one request read from the
// socket and streams a progress frame per stage, then a final or error frame.
func (s *Server) handleStreamProposal(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.maxBody)

	write := func(f streamFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(f)
	}
	fail := func(err error) {
		frame := streamFrame{Type: "error", Error: map[string]any{
			"code":    errorCode(err),
			"message": err.Error(),
		}}
		var se *proposal.StageError
		if errors.As(err, &se) {
			frame.Error["stage"] = se.Stage
		}
		_ = write(frame)
		s.closeStream(conn, websocket.CloseNormalClosure, "")
	}

	_ = conn.SetReadDeadline(time.Now().Add(streamRequestTimeout))
	var req proposal.ProposalRequest
	if err := conn.ReadJSON(&req); err != nil {
		fail(&proposal.Error{Kind: proposal.KindInvalidInput, Field: "request", Message: "expected a proposal request", Err: err})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if req.ProposalID == "" {
		req.ProposalID = proposal.NewProposalID()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// A client that goes away cancels the run.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	result, err := s.pipeline.RunWithProgress(ctx, req, func(stage, message string) {
		_ = write(streamFrame{Type: "progress", Stage: stage, Message: message})
	})
	if err != nil {
		s.metrics.proposals.WithLabelValues("failed").Inc()
		fail(err)
		return
	}
	env := s.record(context.WithoutCancel(ctx), result)
	if err := write(streamFrame{Type: "final", Proposal: &env}); err != nil {
		s.logger.Warn("stream final frame failed", "proposal_id", env.ProposalID, "err", err)
		return
	}
	s.closeStream(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
