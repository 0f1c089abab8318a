package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	msgs    []*nats.Msg
	pubErr  error
	drained bool
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return nil }

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func sampleEnvelope() proposal.ResponseEnvelope {
	return proposal.ResponseEnvelope{
		ProposalID:  "prop-1",
		Customer:    "Acme",
		Currency:    "$",
		ReportMode:  proposal.ReportModeComplete,
		Profile:     proposal.NormalizedProfile{Complexity: proposal.TierMedium, BusinessModel: proposal.ModelSubscription},
		Quote:       proposal.PriceQuote{DIYCost: 78280, FinalTotal: 29000, SavingsPercentage: 63},
		Consistency: proposal.ConsistencyReport{IsConsistent: true},
	}
}

func TestNATSPublisherPublishesSummary(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "", nil)
	require.NoError(t, p.Publish(context.Background(), sampleEnvelope()))

	require.Len(t, fc.msgs, 1)
	msg := fc.msgs[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, "prop-1", msg.Header.Get(nats.MsgIdHdr))

	var got Generated
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "prop-1", got.ProposalID)
	assert.Equal(t, int64(29000), got.FinalTotal)
	assert.Equal(t, 63, got.SavingsPercentage)
	assert.True(t, got.Consistent)

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisherWrapsErrors(t *testing.T) {
	p := newNATSPublisher(&fakeConn{pubErr: errors.New("no responders")}, "sales.events", nil)
	err := p.Publish(context.Background(), sampleEnvelope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish sales.events")
}

func TestConnectWithoutURLIsNop(t *testing.T) {
	p, err := Connect("  ", "", nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), sampleEnvelope()))
	assert.NoError(t, p.Close())
}
