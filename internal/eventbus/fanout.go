// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eventbus

import (
	"context"
	"sync"
)

// fanout manages a set of subscriber channels of a single event type T.
// lossy controls whether publish drops on a full channel (DnsEvent,
// DstIpEvent, RouteEvent) or blocks subject to ctx (IfaceEvent).
type fanout[T any] struct {
	mu          sync.Mutex
	subscribers map[int]chan T
	nextID      int
	bufferSize  int
	lossy       bool
}

func newFanout[T any](bufferSize int, lossy bool) *fanout[T] {
	return &fanout[T]{
		subscribers: make(map[int]chan T),
		bufferSize:  bufferSize,
		lossy:       lossy,
	}
}

func (f *fanout[T]) subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan T, f.bufferSize)
	f.subscribers[id] = ch

	unsubscribe := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if existing, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(existing)
		}
	}

	return ch, unsubscribe
}

func (f *fanout[T]) snapshot() []chan T {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chan T, 0, len(f.subscribers))
	for _, ch := range f.subscribers {
		out = append(out, ch)
	}
	return out
}

// publish blocks, subject to ctx, until ev has been queued on every
// subscriber channel. Used for lossless delivery (IfaceEvent).
func (f *fanout[T]) publish(ctx context.Context, ev T) error {
	for _, ch := range f.snapshot() {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// publishLossy attempts a non-blocking send to every subscriber, dropping
// (and counting) on any channel that is full.
func (f *fanout[T]) publishLossy(ev T) (delivered, dropped int) {
	for _, ch := range f.snapshot() {
		select {
		case ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}
