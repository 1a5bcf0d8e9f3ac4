package cancel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"exchangeconnector/internal/core"
	"exchangeconnector/internal/logtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCanceller struct {
	calls int32
}

func (f *fakeCanceller) Cancel(ctx context.Context, symbol core.Symbol, exchangeID string) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

type fakeRegistry struct {
	orders []*core.InFlightOrder
}

func (f *fakeRegistry) OpenOrders() []*core.InFlightOrder { return f.orders }

func TestOrchestrator_CancelOneDedupesWithinTTL(t *testing.T) {
	c := &fakeCanceller{}
	o := New(c, &fakeRegistry{}, nil, time.Minute, logtest.NewNop())

	order := &core.InFlightOrder{ClientID: "c1", ExchangeID: "ex-1"}
	require.NoError(t, o.CancelOne(context.Background(), order))
	require.NoError(t, o.CancelOne(context.Background(), order))

	assert.Equal(t, int32(1), atomic.LoadInt32(&c.calls))
}

func TestOrchestrator_CancelAllReportsPerOrderSuccess(t *testing.T) {
	c := &fakeCanceller{}
	reg := &fakeRegistry{orders: []*core.InFlightOrder{
		{ClientID: "c1", ExchangeID: "ex-1"},
		{ClientID: "c2", ExchangeID: "ex-2"},
	}}
	o := New(c, reg, nil, time.Minute, logtest.NewNop())

	results, err := o.CancelAll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}
