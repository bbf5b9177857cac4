package client

import (
	"context"
	"log"
	"math/rand"
	"time"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// Dialer opens the transport and blocks until the connection drops. It
// is responsible for re-authenticating and re-joining rooms before
// returning control to the session loop.
type Dialer interface {
	Connect(ctx context.Context) error
}

// Reconnector keeps a transport session alive: each drop schedules a
// redial with exponential backoff plus jitter, capped at 30 seconds. A
// successful connection resets the backoff.
type Reconnector struct {
	dialer Dialer

	// sleep is swappable in tests to avoid wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewReconnector(dialer Dialer) *Reconnector {
	return &Reconnector{dialer: dialer, sleep: sleepCtx}
}

// Run redials until the context ends.
func (r *Reconnector) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		err := r.dialer.Connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// The session was live and then dropped; start backoff over.
			attempt = 0
		}

		attempt++
		wait := backoffWithJitter(attempt)
		log.Printf("client: connection lost (%v), reconnecting in %s", err, wait)
		if !r.sleep(ctx, wait) {
			return
		}
	}
}

// backoffWithJitter doubles the base per attempt, caps at reconnectCap,
// and spreads retries over [wait/2, wait) so clients do not stampede.
func backoffWithJitter(attempt int) time.Duration {
	wait := reconnectBase
	for i := 1; i < attempt && wait < reconnectCap; i++ {
		wait *= 2
	}
	if wait > reconnectCap {
		wait = reconnectCap
	}
	half := wait / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
