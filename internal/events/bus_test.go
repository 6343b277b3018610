package events

import (
	"context"
	"testing"
	"time"

	"allot.org/internal/alloc"
)

func TestPublishIsTenantScoped(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := bus.Subscribe(ctx, "tenant-a")
	b := bus.Subscribe(ctx, "tenant-b")

	if err := bus.AfterCommit(ctx, alloc.Event{Type: alloc.EventUnitCreated, TenantID: "tenant-a", EntityID: "u1"}); err != nil {
		t.Fatalf("AfterCommit: %v", err)
	}

	select {
	case evt := <-a:
		if evt.EntityID != "u1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("tenant-a subscriber did not receive the event")
	}
	select {
	case evt := <-b:
		t.Fatalf("tenant-b received a foreign event: %+v", evt)
	default:
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, "tenant-a")
	if bus.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.Subscribers())
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("expected subscriber removal, got %d", bus.Subscribers())
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = bus.Subscribe(ctx, "tenant-a")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			bus.Publish(alloc.Event{TenantID: "tenant-a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
