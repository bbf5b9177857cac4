package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for attempt, full := range expected {
		for i := 0; i < 50; i++ {
			wait := backoffWithJitter(attempt + 1)
			assert.GreaterOrEqual(t, wait, full/2, "attempt %d", attempt+1)
			assert.Less(t, wait, full, "attempt %d", attempt+1)
		}
	}
}

type countingDialer struct {
	attempts int
	failures int
	done     chan struct{}
}

func (d *countingDialer) Connect(context.Context) error {
	d.attempts++
	if d.attempts <= d.failures {
		return errors.New("dial tcp: connection refused")
	}
	close(d.done)
	// Block like a live session until the caller cancels.
	<-time.After(time.Hour)
	return nil
}

func TestReconnectorRetriesUntilConnected(t *testing.T) {
	dialer := &countingDialer{failures: 3, done: make(chan struct{})}
	r := NewReconnector(dialer)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) bool {
		slept = append(slept, d)
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	select {
	case <-dialer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never connected")
	}

	require.Len(t, slept, 3)
	// Backoff grows between consecutive failures.
	assert.Less(t, slept[0], 2*time.Second)
	assert.GreaterOrEqual(t, slept[2], slept[0])
}

type flappingDialer struct {
	calls chan struct{}
}

func (d *flappingDialer) Connect(context.Context) error {
	d.calls <- struct{}{}
	return nil
}

func TestReconnectorRedialsAfterDrop(t *testing.T) {
	dialer := &flappingDialer{calls: make(chan struct{})}
	r := NewReconnector(dialer)
	r.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-dialer.calls:
		case <-time.After(time.Second):
			t.Fatalf("redial %d never happened", i+1)
		}
	}
}
