// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestIfaceEventOrdering(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.SubscribeIface()
	defer unsubscribe()

	ctx := context.Background()
	if err := bus.PublishIface(ctx, IfaceEvent{Name: "eth0", Up: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishIface(ctx, IfaceEvent{Name: "eth0", Up: false}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first := <-ch
	second := <-ch
	if !first.Up || second.Up {
		t.Fatalf("expected Up then Down, got %v then %v", first, second)
	}
}

func TestIfaceEventBlocksOnFullChannel(t *testing.T) {
	bus := New(1)
	ch, unsubscribe := bus.SubscribeIface()
	defer unsubscribe()

	ctx := context.Background()
	if err := bus.PublishIface(ctx, IfaceEvent{Name: "eth0", Up: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- bus.PublishIface(ctx, IfaceEvent{Name: "eth0", Up: false})
	}()

	select {
	case <-done:
		t.Fatal("second publish should have blocked until the channel drained")
	case <-time.After(20 * time.Millisecond):
	}

	<-ch // drain
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after drain")
	}
}

func TestDnsEventLossyDrop(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.SubscribeDns()
	defer unsubscribe()

	flowID := uint32(3)
	for i := 0; i < 100; i++ {
		bus.PublishDns(DnsEvent{RuleUpdated: true, FlowID: &flowID})
	}

	delivered, dropped := bus.PublishDns(DnsEvent{RuleUpdated: true})
	if delivered != 0 {
		t.Fatalf("expected the fully-buffered channel to drop, delivered=%d", delivered)
	}
	if dropped != 1 {
		t.Fatalf("expected one dropped subscriber, got %d", dropped)
	}
	<-ch // avoid leaking the goroutine-less channel in case of future changes
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(4)
	ch, unsubscribe := bus.SubscribeDstIp()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
