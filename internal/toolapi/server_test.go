package toolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joelkehle/sales-proposal-agency/internal/auth"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, env proposal.ResponseEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, env.ProposalID)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type fakePDF struct{ err error }

func (f fakePDF) Render(_ context.Context, env proposal.ResponseEnvelope) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 " + env.ProposalID), nil
}

type fixture struct {
	handler   http.Handler
	publisher *recordingPublisher
}

func newFixture(t *testing.T, mutate func(*Options)) fixture {
	t.Helper()
	p, err := proposal.NewPipeline(proposal.DefaultConfig(), nil)
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "proposals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pub := &recordingPublisher{}
	opts := Options{
		Pipeline:  p,
		History:   st,
		Publisher: pub,
		PDF:       fakePDF{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := New(opts)
	require.NoError(t, err)
	return fixture{handler: srv.Handler(), publisher: pub}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		blob, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		OK    bool           `json:"ok"`
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	return body.Error
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCalculatePriceTool(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodPost, "/v1/tools/calculate-price", proposal.PriceInput{DIYCost: 252000, Complexity: proposal.TierMedium})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var q proposal.PriceQuote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, int64(93000), q.CorePrice)
	assert.Equal(t, int64(93000), q.FinalTotal)
	assert.Len(t, q.Options, 3)
}

func TestNormalizeTool(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodPost, "/v1/tools/normalize-roadmap", proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var prof proposal.NormalizedProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prof))
	assert.Equal(t, proposal.TierMedium, prof.Complexity)
	assert.Equal(t, 160, prof.EstimatedBackendHours)
}

func TestCheckConsistencyToolFlagsPrice(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodPost, "/v1/tools/check-consistency", proposal.ConsistencyInput{
		Complexity: proposal.TierMedium,
		DIYCost:    252000,
		CorePrice:  120000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep proposal.ConsistencyReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.False(t, rep.IsConsistent)
	assert.Equal(t, 75, rep.Score)
}

func TestToolErrorsMapToStatus(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "/v1/tools/normalize-roadmap", "{not json", http.StatusBadRequest, "invalid_input"},
		{"empty roadmap", "/v1/tools/normalize-roadmap", proposal.RoadmapInput{}, http.StatusBadRequest, "invalid_input"},
		{"negative diy", "/v1/tools/calculate-price", proposal.PriceInput{DIYCost: -1, Complexity: proposal.TierMedium}, http.StatusBadRequest, "invalid_input"},
		{"unknown model", "/v1/tools/project-revenue", proposal.RevenueInput{BusinessModel: "barter"}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, f.handler, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec)["code"])
		})
	}
}

func TestProposalLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	req := proposal.ProposalRequest{
		Customer: "Acme",
		Roadmap:  proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"},
	}
	rec := do(t, f.handler, http.MethodPost, "/v1/proposals", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env proposal.ResponseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, strings.HasPrefix(env.ProposalID, "prop-"))
	assert.Equal(t, int64(29000), env.Quote.FinalTotal)
	assert.Equal(t, proposal.ReportModeComplete, env.ReportMode)
	assert.Equal(t, []string{env.ProposalID}, f.publisher.published())

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals/"+env.ProposalID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got proposal.ResponseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, env.Quote, got.Quote)

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Proposals []store.Summary `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Proposals, 1)
	assert.Equal(t, env.ProposalID, list.Proposals[0].ProposalID)

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals/"+env.ProposalID+"/report.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Project Proposal: Acme"))

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals/"+env.ProposalID+"/report.html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<title>Project Proposal for Acme</title>")

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals/"+env.ProposalID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestCreateProposalKeepsCallerID(t *testing.T) {
	f := newFixture(t, nil)
	req := proposal.ProposalRequest{ProposalID: "prop-fixed", Roadmap: proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"}}
	rec := do(t, f.handler, http.MethodPost, "/v1/proposals", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"proposal_id":"prop-fixed"`)
}

func TestCreateProposalSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("nats down")
	rec := do(t, f.handler, http.MethodPost, "/v1/proposals", proposal.ProposalRequest{Roadmap: proposal.RoadmapInput{Description: "basic MVP"}})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateProposalRejectsEmptyRoadmap(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodPost, "/v1/proposals", proposal.ProposalRequest{Customer: "Acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeError(t, rec)["code"])
	assert.Empty(t, f.publisher.published())
}

func TestUnknownProposal(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/v1/proposals/prop-missing", "/v1/proposals/prop-missing/report.html"} {
		rec := do(t, f.handler, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.History = nil })
	rec := do(t, f.handler, http.MethodGet, "/v1/proposals", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "history_disabled", decodeError(t, rec)["code"])

	rec = do(t, f.handler, http.MethodPost, "/v1/proposals", proposal.ProposalRequest{Roadmap: proposal.RoadmapInput{Description: "basic MVP"}})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestListRejectsBadLimit(t *testing.T) {
	f := newFixture(t, nil)
	rec := do(t, f.handler, http.MethodGet, "/v1/proposals?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPDFUnavailable(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PDF = nil })
	rec := do(t, f.handler, http.MethodGet, "/v1/proposals/prop-x/report.pdf", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestPDFRenderFailureIsUpstream(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PDF = fakePDF{err: errors.New("chrome missing")} })
	rec := do(t, f.handler, http.MethodPost, "/v1/proposals", proposal.ProposalRequest{ProposalID: "prop-pdf", Roadmap: proposal.RoadmapInput{Description: "basic MVP"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, f.handler, http.MethodGet, "/v1/proposals/prop-pdf/report.pdf", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "tool_upstream_failure", decodeError(t, rec)["code"])
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxBodyBytes = 64 })
	body := `{"description":"` + strings.Repeat("dashboard ", 20) + `"}`
	rec := do(t, f.handler, http.MethodPost, "/v1/tools/normalize-roadmap", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	do(t, f.handler, http.MethodGet, "/healthz", nil)
	do(t, f.handler, http.MethodPost, "/v1/proposals", proposal.ProposalRequest{Roadmap: proposal.RoadmapInput{Description: "basic MVP"}})

	rec := do(t, f.handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sales_proposal_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `sales_proposal_proposals_total{outcome="complete"} 1`)
	assert.Contains(t, body, "sales_proposal_http_request_duration_seconds_bucket")
}

func TestNewRequiresPipeline(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestTokenRequiredWhenConfigured(t *testing.T) {
	iss, err := auth.NewIssuer("0123456789abcdef-test")
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Tokens = iss })

	rec := do(t, f.handler, http.MethodGet, "/v1/proposals", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec)["code"])

	req := httptest.NewRequest(http.MethodGet, "/v1/proposals", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := iss.Mint("sales-desk", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/proposals", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/proposals/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamAcceptsTokenAsSubprotocol(t *testing.T) {
	iss, err := auth.NewIssuer("0123456789abcdef-test")
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Tokens = iss })
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/proposals/stream"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	tok, err := iss.Mint("browser", time.Hour)
	require.NoError(t, err)
	dialer := websocket.Dialer{Subprotocols: []string{auth.WebSocketProtocol, tok}}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	assert.Equal(t, auth.WebSocketProtocol, conn.Subprotocol())

	require.NoError(t, conn.WriteJSON(proposal.ProposalRequest{
		Roadmap: proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"},
	}))
	frames := readFrames(t, conn)
	require.NotEmpty(t, frames)
	assert.Equal(t, "final", frames[len(frames)-1].Type)
}

func readFrames(t *testing.T, conn *websocket.Conn) []streamFrame {
	t.Helper()
	var frames []streamFrame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f streamFrame
		if err := conn.ReadJSON(&f); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			return frames
		}
		frames = append(frames, f)
	}
}

func TestStreamProposal(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialStream(t, f.handler)
	require.NoError(t, conn.WriteJSON(proposal.ProposalRequest{
		ProposalID: "prop-stream",
		Customer:   "Acme",
		Roadmap:    proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"},
	}))

	frames := readFrames(t, conn)
	require.NotEmpty(t, frames)
	var stages []string
	for _, fr := range frames[:len(frames)-1] {
		assert.Equal(t, "progress", fr.Type)
		stages = append(stages, fr.Stage)
	}
	assert.Equal(t, []string{
		proposal.StageNormalize, proposal.StageEstimateCost, proposal.StageRevenue,
		proposal.StagePrice, proposal.StageConsistency,
	}, stages)

	final := frames[len(frames)-1]
	require.Equal(t, "final", final.Type)
	require.NotNil(t, final.Proposal)
	assert.Equal(t, int64(29000), final.Proposal.Quote.FinalTotal)
	assert.Equal(t, []string{"prop-stream"}, f.publisher.published())

	rec := do(t, f.handler, http.MethodGet, "/v1/proposals/prop-stream", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamRejectsBadRequest(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialStream(t, f.handler)
	require.NoError(t, conn.WriteJSON(proposal.ProposalRequest{Customer: "Acme"}))

	frames := readFrames(t, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "invalid_input", frames[0].Error["code"])
	assert.Empty(t, f.publisher.published())
}
