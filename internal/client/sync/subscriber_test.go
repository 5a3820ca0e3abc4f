package sync

import (
	"context"
	"encoding/json"
	gosync "sync"
	"testing"
	"time"

	"github.com/dpetrovs/finsync/internal/client/graph"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollStep is one scripted long-poll round: the response (or error) the fake
// server returns for that round.
type pollStep struct {
	resp json.RawMessage
	err  error
}

// scriptedCaller replays steps in order, recording each request, then blocks
// on ctx like a real long poll with nothing to report.
type scriptedCaller struct {
	mu       gosync.Mutex
	steps    []pollStep
	requests []pollRequest
}

func (c *scriptedCaller) Call(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	return c.CallLongPoll(ctx, requestType, payload)
}

func (c *scriptedCaller) CallLongPoll(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	if req, ok := payload.(pollRequest); ok {
		c.requests = append(c.requests, req)
	}
	if len(c.steps) == 0 {
		c.mu.Unlock()
		<-ctx.Done()
		return nil, common.ErrTaskCancelled
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()
	return step.resp, step.err
}

func (c *scriptedCaller) recorded() []pollRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pollRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

func newSubscriberFixture(steps []pollStep, marks *memMarks) (*Subscriber, *scriptedCaller, *graph.Collection[*models.Transaction]) {
	caller := &scriptedCaller{steps: steps}
	col := graph.NewCollection[*models.Transaction](models.KindTransaction)
	rec := NewReconciler(marks, testLogger())
	Bind[models.Transaction](rec, col, nil)
	sub := NewSubscriber(caller, rec, marks, DeviceInfo{ID: "dev-1", Name: "laptop"}, testLogger())
	sub.backoff = time.Millisecond
	return sub, caller, col
}

func TestSubscriberAppliesDeltaAndAdvancesWatermark(t *testing.T) {
	marks := &memMarks{}
	steps := []pollStep{
		{resp: json.RawMessage(`{
			"return_time": 100,
			"transactions": [{"id":"5","updated_at":90,"active":true,"title":"coffee","amount":"3","date":"2026-08-01"}]
		}`)},
		{resp: json.RawMessage(`{
			"return_time": 200,
			"transactions": [{"id":"5","updated_at":190,"active":false,"title":"coffee","amount":"3","date":"2026-08-01"}]
		}`)},
	}
	sub, caller, col := newSubscriberFixture(steps, marks)

	sub.Start(context.Background())
	defer sub.Stop()

	require.Eventually(t, func() bool {
		return marks.get() == 200
	}, time.Second, 5*time.Millisecond)

	_, ok := col.Get("5")
	assert.False(t, ok, "inactive delta must remove the record")

	reqs := caller.recorded()
	require.GreaterOrEqual(t, len(reqs), 2)
	assert.Equal(t, int64(0), reqs[0].LastReturnTime)
	assert.Equal(t, int64(100), reqs[1].LastReturnTime)
	assert.Equal(t, "dev-1", reqs[0].DeviceID)
	assert.Equal(t, "laptop", reqs[0].DeviceName)
}

func TestSubscriberBacksOffOnTransientFailure(t *testing.T) {
	marks := &memMarks{}
	steps := []pollStep{
		{err: common.ErrConnection},
		{resp: json.RawMessage(`{"return_time": 50}`)},
	}
	sub, _, _ := newSubscriberFixture(steps, marks)

	sub.Start(context.Background())
	defer sub.Stop()

	require.Eventually(t, func() bool {
		return marks.get() == 50
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriberBacksOffOnUndecodableResponse(t *testing.T) {
	marks := &memMarks{}
	steps := []pollStep{
		{resp: json.RawMessage(`not json`)},
		{resp: json.RawMessage(`{"return_time": 60}`)},
	}
	sub, _, _ := newSubscriberFixture(steps, marks)

	sub.Start(context.Background())
	defer sub.Stop()

	require.Eventually(t, func() bool {
		return marks.get() == 60
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriberStopsOnAuthFailure(t *testing.T) {
	marks := &memMarks{}
	steps := []pollStep{{err: common.ErrAccessRevoked}}
	sub, _, _ := newSubscriberFixture(steps, marks)

	authErr := make(chan error, 1)
	sub.OnResubscribeFailed = func(err error) { authErr <- err }

	sub.Start(context.Background())
	defer sub.Stop()

	select {
	case err := <-authErr:
		assert.ErrorIs(t, err, common.ErrAccessRevoked)
	case <-time.After(time.Second):
		t.Fatal("OnResubscribeFailed was not called")
	}

	require.Eventually(t, func() bool {
		return sub.State() == StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriberStopWaitsForLoopExit(t *testing.T) {
	marks := &memMarks{}
	sub, _, _ := newSubscriberFixture(nil, marks)

	sub.Start(context.Background())
	require.Eventually(t, func() bool {
		return sub.State() == StateWaiting
	}, time.Second, 5*time.Millisecond)

	sub.Stop()
	assert.Equal(t, StateIdle, sub.State())

	// A second Stop with no loop running must not block or panic.
	sub.Stop()
}

func TestSubscriberRestartIsSingleFlight(t *testing.T) {
	marks := &memMarks{}
	sub, caller, _ := newSubscriberFixture(nil, marks)

	ctx := context.Background()
	sub.Start(ctx)
	sub.Start(ctx)
	sub.Start(ctx)

	require.Eventually(t, func() bool {
		return sub.State() == StateWaiting
	}, time.Second, 5*time.Millisecond)
	sub.Stop()

	// Each restart fully replaces the previous loop, so at most one request
	// can be in flight at any time.
	assert.Equal(t, StateIdle, sub.State())
	_ = caller.recorded()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
