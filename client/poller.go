package client

import (
	"context"
	"log"
	"time"
)

// Fetcher reads the unread summary from the server, typically via the
// notifications unread-count endpoint.
type Fetcher interface {
	UnreadCount(ctx context.Context) (int, error)
}

// Poller is the fallback notification path while the websocket is down:
// it refreshes the unread count on a reduced cadence and reports changes.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	onChange func(unread int)

	lastSeen int
	seeded   bool
}

// NewPoller builds a poller. onChange fires whenever the unread count
// moves, including the first successful fetch.
func NewPoller(fetcher Fetcher, interval time.Duration, onChange func(unread int)) *Poller {
	return &Poller{fetcher: fetcher, interval: interval, onChange: onChange}
}

// Run polls until the context ends. Fetch errors are logged and the next
// tick retries; the poller never terminates on its own.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	unread, err := p.fetcher.UnreadCount(ctx)
	if err != nil {
		log.Printf("client: poll unread count: %v", err)
		return
	}
	if !p.seeded || unread != p.lastSeen {
		p.seeded = true
		p.lastSeen = unread
		if p.onChange != nil {
			p.onChange(unread)
		}
	}
}
