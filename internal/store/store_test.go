package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "proposals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func envelope(id string, total int64, at time.Time) proposal.ResponseEnvelope {
	return proposal.ResponseEnvelope{
		ProposalID: id,
		Customer:   "Acme",
		Currency:   "$",
		ReportMode: proposal.ReportModeComplete,
		Profile:    proposal.NormalizedProfile{Complexity: proposal.TierMedium, BusinessModel: proposal.ModelSubscription},
		Quote:      proposal.PriceQuote{DIYCost: 78280, CorePrice: total, FinalTotal: total},
		Consistency: proposal.ConsistencyReport{
			IsConsistent: true,
			Score:        100,
			Issues:       []proposal.ConsistencyIssue{},
		},
		PipelineMetadata: proposal.PipelineMetadata{CompletedAt: at},
		ReportMarkdown:   "# Project Proposal",
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, envelope("prop-1", 29000, at)))
	got, err := s.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Customer)
	assert.Equal(t, int64(29000), got.Quote.CorePrice)
	assert.Equal(t, "# Project Proposal", got.ReportMarkdown)
	assert.Equal(t, "sqlite", s.Driver())

	_, err = s.Get(ctx, "prop-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpserts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, envelope("prop-1", 29000, at)))
	require.NoError(t, s.Record(ctx, envelope("prop-1", 31000, at)))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(31000), list[0].FinalTotal)
}

func TestListNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"prop-a", "prop-b", "prop-c"} {
		require.NoError(t, s.Save(ctx, envelope(id, int64(1000*(i+1)), base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "prop-c", list[0].ProposalID)
	assert.Equal(t, "prop-b", list[1].ProposalID)
	assert.True(t, list[0].Consistent)
	assert.Equal(t, "medium", list[0].Complexity)
	assert.True(t, base.Add(2*time.Minute).Equal(list[0].CreatedAt))
}

func TestSaveRequiresID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Save(context.Background(), proposal.ResponseEnvelope{}))
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSQLiteSourceKeepsExistingQuery(t *testing.T) {
	cases := map[string]string{
		"proposals.db":                        "proposals.db?" + sqlitePragmas,
		"proposals.db?_pragma=foreign_keys(1)": "proposals.db?_pragma=foreign_keys(1)&" + sqlitePragmas,
		"file:proposals.db?mode=rwc&":          "file:proposals.db?mode=rwc&" + sqlitePragmas,
	}
	for dsn, want := range cases {
		assert.Equal(t, want, sqliteSource(dsn), dsn)
	}
}

func TestOpenWithQueryInDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.db")
	s, err := Open(path + "?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, envelope("prop-q", 29000, time.Now().UTC())))
	got, err := s.Get(ctx, "prop-q")
	require.NoError(t, err)
	assert.Equal(t, int64(29000), got.Quote.FinalTotal)
	assert.FileExists(t, path)
}
