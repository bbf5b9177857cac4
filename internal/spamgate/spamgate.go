// Package spamgate evaluates per-sender heuristics synchronously before a
// message is accepted. Checks run in a fixed order and short-circuit on
// the first failure. The gate performs no I/O and is deterministic for a
// given sender history.
package spamgate

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Rejection reasons, first failing check wins.
const (
	ReasonRateLimited  = "rate_limited"
	ReasonDuplicate    = "duplicate"
	ReasonTooManyLinks = "too_many_links"
	ReasonBlacklisted  = "blacklisted_content"
)

const idleTimeout = 10 * time.Minute

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)

// Policy configures the gate thresholds.
type Policy struct {
	RateLimit    int           // max accepted messages per RateWindow
	RateWindow   time.Duration // sliding window for the rate check
	DuplicateGap time.Duration // identical content within this gap is a duplicate
	MaxLinks     int           // max URLs per message
	Blacklist    []string      // case-insensitive substrings
}

// Verdict is the gate's decision for one message.
type Verdict struct {
	IsSpam bool
	Reason string
}

// Gate tracks per-sender history in memory with idle eviction.
type Gate struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	senders map[int64]*senderHistory
}

type senderHistory struct {
	timestamps  []time.Time
	lastContent string
	lastSentAt  time.Time
	lastSeen    time.Time
}

// New creates a gate with the given policy.
func New(policy Policy) *Gate {
	return &Gate{
		policy:  policy,
		now:     time.Now,
		senders: make(map[int64]*senderHistory),
	}
}

// NewWithClock creates a gate with an injected clock for tests.
func NewWithClock(policy Policy, now func() time.Time) *Gate {
	g := New(policy)
	g.now = now
	return g
}

// Check evaluates content from senderID. An accepted message is recorded
// into the sender's history; a rejected one is not.
func (g *Gate) Check(senderID int64, content string) Verdict {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.senders[senderID]
	if !ok {
		entry = &senderHistory{timestamps: make([]time.Time, 0, g.policy.RateLimit+1)}
		g.senders[senderID] = entry
	}
	entry.lastSeen = now

	// Drop timestamps outside the sliding window, reusing capacity.
	windowStart := now.Add(-g.policy.RateWindow)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= g.policy.RateLimit {
		return Verdict{IsSpam: true, Reason: ReasonRateLimited}
	}

	if entry.lastContent != "" && content == entry.lastContent &&
		now.Sub(entry.lastSentAt) <= g.policy.DuplicateGap {
		return Verdict{IsSpam: true, Reason: ReasonDuplicate}
	}

	if len(urlPattern.FindAllStringIndex(content, -1)) > g.policy.MaxLinks {
		return Verdict{IsSpam: true, Reason: ReasonTooManyLinks}
	}

	lowered := strings.ToLower(content)
	for _, word := range g.policy.Blacklist {
		if word != "" && strings.Contains(lowered, strings.ToLower(word)) {
			return Verdict{IsSpam: true, Reason: ReasonBlacklisted}
		}
	}

	entry.timestamps = append(entry.timestamps, now)
	entry.lastContent = content
	entry.lastSentAt = now
	return Verdict{}
}

// Sweep removes idle sender entries. Called periodically from a janitor
// goroutine; correctness does not depend on it.
func (g *Gate) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-idleTimeout)
	for id, entry := range g.senders {
		if entry.lastSeen.Before(cutoff) {
			delete(g.senders, id)
		}
	}
}

// StartJanitor sweeps idle entries until stop is closed.
func (g *Gate) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
