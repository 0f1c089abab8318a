package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointRegistersProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, shutdown, err := Setup(context.Background(), Config{}, "test")
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestPipelineStagesAreTraced(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, shutdown, err := Setup(context.Background(), Config{ServiceName: "proposal-test"}, "test")
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()
	rec := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(rec)

	p, err := proposal.NewPipeline(proposal.DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), proposal.ProposalRequest{Roadmap: proposal.RoadmapInput{Description: "basic MVP, authentication, dashboard"}})
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	for _, want := range []string{"proposal.pipeline", "proposal.normalize", "proposal.estimate_cost", "proposal.project_revenue", "proposal.calculate_price", "proposal.check_consistency"} {
		assert.Contains(t, names, want)
	}
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	_, shutdown, err := Setup(context.Background(), Config{Stdout: true, StdoutWriter: &buf}, "test")
	require.NoError(t, err)

	p, err := proposal.NewPipeline(proposal.DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), proposal.ProposalRequest{Roadmap: proposal.RoadmapInput{Description: "basic MVP"}})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "proposal.calculate_price"`)
}
