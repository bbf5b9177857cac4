package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubFetcher struct {
	counts []int
	errs   []error
	call   int
}

func (f *stubFetcher) UnreadCount(context.Context) (int, error) {
	i := f.call
	f.call++
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	return f.counts[i], nil
}

func TestPollerReportsChangesOnly(t *testing.T) {
	fetcher := &stubFetcher{counts: []int{0, 0, 3, 3, 1}}
	var seen []int
	p := NewPoller(fetcher, 0, func(unread int) { seen = append(seen, unread) })

	for i := 0; i < len(fetcher.counts); i++ {
		p.poll(context.Background())
	}

	// The first fetch always reports, then only transitions.
	assert.Equal(t, []int{0, 3, 1}, seen)
}

func TestPollerSurvivesFetchErrors(t *testing.T) {
	fetcher := &stubFetcher{
		counts: []int{0, 5, 5},
		errs:   []error{errors.New("transport down"), nil, nil},
	}
	var seen []int
	p := NewPoller(fetcher, 0, func(unread int) { seen = append(seen, unread) })

	for i := 0; i < 3; i++ {
		p.poll(context.Background())
	}

	assert.Equal(t, []int{5}, seen)
}
