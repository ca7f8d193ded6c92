package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/volley/internal/hub"
	"github.com/torosent/volley/internal/loadtest"
)

type fakeConn struct {
	mu      sync.Mutex
	msgs    [][]byte
	closed  bool
	sendErr error
	block   chan struct{} // Send waits on it (or ctx) when non-nil
}

func (c *fakeConn) Transport() string { return "fake" }

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func outcome(code int) loadtest.Outcome {
	return loadtest.Completed(code, 10*time.Millisecond)
}

func waitDone(t *testing.T, sub *hub.Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not done in time")
	}
}

func TestPublishDeliversInOrderToEverySubscriber(t *testing.T) {
	h := hub.New(hub.Options{})
	defer h.Close()

	a, b := &fakeConn{}, &fakeConn{}
	_, err := h.Subscribe(a)
	require.NoError(t, err)
	_, err = h.Subscribe(b)
	require.NoError(t, err)

	for code := 200; code < 210; code++ {
		h.Publish(outcome(code))
	}

	for _, conn := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return len(conn.received()) == 10 }, 2*time.Second, 5*time.Millisecond)
		for i, msg := range conn.received() {
			var o loadtest.Outcome
			require.NoError(t, json.Unmarshal(msg, &o))
			assert.Equal(t, 200+i, o.Code())
		}
	}
}

func TestPublishWireFormat(t *testing.T) {
	h := hub.New(hub.Options{})
	defer h.Close()
	conn := &fakeConn{}
	_, err := h.Subscribe(conn)
	require.NoError(t, err)

	h.Publish(loadtest.Failed(errors.New("connection refused"), 0))

	require.Eventually(t, func() bool { return len(conn.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t,
		`{"statusCode":null,"responseTimeSeconds":0,"success":false,"errorMessage":"connection refused"}`,
		string(conn.received()[0]))
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	h := hub.New(hub.Options{Buffer: 1})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(outcome(200))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSlowSubscriberIsDroppedOthersUnaffected(t *testing.T) {
	h := hub.New(hub.Options{Buffer: 2, SendTimeout: time.Minute})
	defer h.Close()

	slow := &fakeConn{block: make(chan struct{})}
	fast := &fakeConn{}
	slowSub, err := h.Subscribe(slow)
	require.NoError(t, err)
	_, err = h.Subscribe(fast)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		h.Publish(outcome(200))
		time.Sleep(time.Millisecond)
	}

	waitDone(t, slowSub)
	assert.True(t, slow.isClosed())
	require.Eventually(t, func() bool { return len(fast.received()) == 20 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Len())
}

func TestSendErrorDropsSubscriber(t *testing.T) {
	h := hub.New(hub.Options{})
	defer h.Close()

	broken := &fakeConn{sendErr: errors.New("broken pipe")}
	healthy := &fakeConn{}
	brokenSub, err := h.Subscribe(broken)
	require.NoError(t, err)
	_, err = h.Subscribe(healthy)
	require.NoError(t, err)

	h.Publish(outcome(201))
	waitDone(t, brokenSub)

	h.Publish(outcome(202))
	require.Eventually(t, func() bool { return len(healthy.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Len())
	assert.Zero(t, brokenSub.Delivered())
}

func TestSendTimeoutDropsSubscriber(t *testing.T) {
	h := hub.New(hub.Options{SendTimeout: 20 * time.Millisecond})
	defer h.Close()

	stuck := &fakeConn{block: make(chan struct{})}
	sub, err := h.Subscribe(stuck)
	require.NoError(t, err)

	h.Publish(outcome(200))
	waitDone(t, sub)
	assert.Equal(t, 0, h.Len())
}

func TestUnsubscribeClosesConnection(t *testing.T) {
	h := hub.New(hub.Options{})
	conn := &fakeConn{}
	sub, err := h.Subscribe(conn)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())

	h.Unsubscribe(sub.ID())
	waitDone(t, sub)
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, h.Len())

	h.Unsubscribe(sub.ID())
	h.Unsubscribe("unknown")
}

func TestLateSubscriberSeesOnlyFutureOutcomes(t *testing.T) {
	h := hub.New(hub.Options{})
	defer h.Close()

	h.Publish(outcome(200))
	late := &fakeConn{}
	_, err := h.Subscribe(late)
	require.NoError(t, err)
	h.Publish(outcome(204))

	require.Eventually(t, func() bool { return len(late.received()) == 1 }, time.Second, 5*time.Millisecond)
	var o loadtest.Outcome
	require.NoError(t, json.Unmarshal(late.received()[0], &o))
	assert.Equal(t, 204, o.Code())
}

func TestCloseDisconnectsAllAndRejectsNew(t *testing.T) {
	h := hub.New(hub.Options{})
	var subs []*hub.Subscription
	for i := 0; i < 3; i++ {
		sub, err := h.Subscribe(&fakeConn{})
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	h.Close()
	for _, sub := range subs {
		waitDone(t, sub)
	}
	assert.Equal(t, 0, h.Len())

	_, err := h.Subscribe(&fakeConn{})
	assert.ErrorIs(t, err, hub.ErrClosed)
}

func TestSubscribersSnapshot(t *testing.T) {
	h := hub.New(hub.Options{})
	defer h.Close()
	conn := &fakeConn{}
	sub, err := h.Subscribe(conn)
	require.NoError(t, err)

	h.Publish(outcome(200))
	require.Eventually(t, func() bool { return sub.Delivered() == 1 }, time.Second, 5*time.Millisecond)

	infos := h.Subscribers()
	require.Len(t, infos, 1)
	assert.Equal(t, sub.ID(), infos[0].ID)
	assert.Equal(t, "fake", infos[0].Transport)
	assert.Equal(t, int64(1), infos[0].Stats.Sent)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := hub.New(hub.Options{Buffer: 4096})
	defer h.Close()

	steady := &fakeConn{}
	_, err := h.Subscribe(steady)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				h.Publish(outcome(200))
			}
		}()
	}
	for s := 0; s < 10; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := h.Subscribe(&fakeConn{})
			if err != nil {
				return
			}
			h.Unsubscribe(sub.ID())
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(steady.received()) == 1000 }, 2*time.Second, 5*time.Millisecond)
}
