package proposal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseResult(t *testing.T) PipelineResult {
	t.Helper()
	p, err := NewPipeline(DefaultConfig(), nil)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), ProposalRequest{Customer: "Acme", Roadmap: RoadmapInput{Description: "basic MVP, authentication, dashboard"}})
	require.NoError(t, err)
	return res
}

func narrativeJSON(t *testing.T, n Narrative) string {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return string(b)
}

func TestDeterministicNarrativeUsesComputedFigures(t *testing.T) {
	res := baseResult(t)
	n := DeterministicNarrative(res)
	assert.False(t, n.Generated)
	assert.Contains(t, n.Headline, "$29,000")
	assert.Contains(t, n.Headline, "$78,280")
	assert.Len(t, n.TalkingPoints, 3)
	assert.NotEmpty(t, n.ObjectionHandling)
	assert.NoError(t, validateNarrative(n, moneyPattern(res.Revenue.Currency), allowedFigures(res)))
}

func TestValidateNarrativeRejectsInventedFigures(t *testing.T) {
	res := baseResult(t)
	n := Narrative{
		Headline:          "Save $1,000,000 today",
		ExecutiveSummary:  "A summary.",
		TalkingPoints:     []string{"a", "b", "c"},
		ObjectionHandling: []string{"d"},
	}
	err := validateNarrative(n, moneyPattern(res.Revenue.Currency), allowedFigures(res))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$1,000,000")

	n.Headline = "Ship for $29,000"
	assert.NoError(t, validateNarrative(n, moneyPattern(res.Revenue.Currency), allowedFigures(res)))

	n.TalkingPoints = n.TalkingPoints[:2]
	assert.Error(t, validateNarrative(n, moneyPattern(res.Revenue.Currency), allowedFigures(res)))
}

func TestValidateNarrativeChecksConfiguredCurrency(t *testing.T) {
	p, err := NewPipeline(DefaultConfig(), nil)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), ProposalRequest{
		Customer: "Acme",
		Currency: "€",
		Roadmap:  RoadmapInput{Description: "basic MVP, authentication, dashboard"},
	})
	require.NoError(t, err)
	require.Equal(t, "€", res.Revenue.Currency)
	amounts := moneyPattern(res.Revenue.Currency)

	n := Narrative{
		Headline:          "Ship for €999,999",
		ExecutiveSummary:  "A summary.",
		TalkingPoints:     []string{"a", "b", "c"},
		ObjectionHandling: []string{"d"},
	}
	err = validateNarrative(n, amounts, allowedFigures(res))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "€999,999")

	n.Headline = "Ship for € 29,000"
	assert.NoError(t, validateNarrative(n, amounts, allowedFigures(res)))

	n.Headline = "Ship for $999,999"
	assert.Error(t, validateNarrative(n, amounts, allowedFigures(res)))

	assert.NoError(t, validateNarrative(DeterministicNarrative(res), amounts, allowedFigures(res)))
}

func TestDeterministicNarrativeUsesConfiguredFirstMoverWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Revenue.FirstMoverMonths = 3
	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), ProposalRequest{Roadmap: RoadmapInput{Description: "basic MVP, authentication, dashboard"}})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Revenue.FirstMoverMonths)
	n := DeterministicNarrative(res)
	assert.Contains(t, n.TalkingPoints[2], "over 3 months.")
	assert.NotContains(t, n.TalkingPoints[2], "six")
}

func TestLLMNarratorRetriesUntilValid(t *testing.T) {
	res := baseResult(t)
	good := Narrative{
		Headline:          "Launch in 13 weeks for $29,000",
		ExecutiveSummary:  "Skip hiring and ship sooner.",
		TalkingPoints:     []string{"Senior team on day one", "No recruitment overhead", "Fixed scope"},
		ObjectionHandling: []string{"Your IP stays yours."},
	}
	bad := good
	bad.Headline = "Only $5"
	caller := &queueCaller{responses: []queueResponse{{body: narrativeJSON(t, bad)}, {body: narrativeJSON(t, good)}}}

	n, m, err := NewLLMNarrator(newTestExecutor(caller)).Narrate(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, n.Generated)
	assert.Equal(t, good.Headline, n.Headline)
	assert.Equal(t, 2, m.Attempts)
	assert.Contains(t, caller.prompts[0], `"total_diy_cost": 78280`)
	assert.Contains(t, caller.prompts[1], "failed validation")
}
