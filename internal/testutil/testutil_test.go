package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/HerbHall/switchbridge/pkg/plugin"
)

func TestLogger_NotNil(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestMockBus_RecordsEvents(t *testing.T) {
	bus := NewMockBus()

	ev := plugin.Event{Topic: "test.topic", Source: "test"}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	bus.PublishAsync(context.Background(), plugin.Event{Topic: "test.async", Source: "test"})

	events := bus.Events()
	if len(events) != 2 {
		t.Fatalf("Events len = %d, want 2", len(events))
	}
	if events[0].Topic != "test.topic" {
		t.Errorf("events[0].Topic = %q, want test.topic", events[0].Topic)
	}
	if got := bus.Topic("test.async"); len(got) != 1 {
		t.Errorf("Topic(test.async) len = %d, want 1", len(got))
	}
}

func TestMockBus_Reset(t *testing.T) {
	bus := NewMockBus()
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "a"})
	bus.Reset()
	if len(bus.Events()) != 0 {
		t.Error("expected empty events after Reset")
	}
}

func TestClock_AdvanceFiresInOrder(t *testing.T) {
	c := NewClock()
	var fired []string
	c.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "b") })
	c.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, "a")
		// Scheduled from a callback and still inside the window.
		c.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	c.AfterFunc(time.Second, func() { fired = append(fired, "late") })

	start := c.Now()
	c.Advance(20 * time.Millisecond)

	want := []string{"a", "a2", "b"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
	if got := c.Now().Sub(start); got != 20*time.Millisecond {
		t.Errorf("elapsed = %v, want 20ms", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

func TestClock_Stop(t *testing.T) {
	c := NewClock()
	fired := false
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on a pending timer should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
	c.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestClock_Set(t *testing.T) {
	c := NewClock()
	target := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("Set: got %v, want %v", c.Now(), target)
	}
}

func TestNewDiscoveredSwitcher(t *testing.T) {
	d := NewDiscoveredSwitcher()
	if d.ModelID != 12 || d.Fingerprint == "" {
		t.Errorf("unexpected defaults: %+v", d)
	}

	d = NewDiscoveredSwitcher(WithIP("10.0.0.5"), WithName("Studio"), WithModel(9, "ATEM 1 M/E"))
	if d.IP != "10.0.0.5" || d.Name != "Studio" || d.ModelID != 9 || d.Model != "ATEM 1 M/E" {
		t.Errorf("options not applied: %+v", d)
	}
}
