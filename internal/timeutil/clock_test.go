package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since went backwards")
	}
	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
	tk.Reset(2 * time.Millisecond)
}

func TestMockClock_NowSinceSet(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	if !c.Now().Equal(base) {
		t.Errorf("Now = %v, want %v", c.Now(), base)
	}
	c.Advance(90 * time.Second)
	if got := c.Since(base); got != 90*time.Second {
		t.Errorf("Since = %v, want 90s", got)
	}
	later := base.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Set did not move the clock")
	}
}

func TestMockTicker_Advance(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	tk := c.NewTicker(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-tk.C():
		if !got.Equal(base.Add(time.Second)) {
			t.Errorf("tick time = %v", got)
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
	if !tk.(*MockTicker).Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestMockTicker_TriggerAndWait(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	go c.NewTicker(time.Minute)

	mt := c.WaitTicker(time.Second)
	if mt == nil {
		t.Fatal("WaitTicker timed out")
	}
	now := time.Unix(10, 0)
	mt.Trigger(now)
	mt.Trigger(now.Add(time.Second)) // dropped, channel full
	if got := <-mt.C(); !got.Equal(now) {
		t.Errorf("tick = %v, want %v", got, now)
	}
	select {
	case <-mt.C():
		t.Error("second trigger should have been dropped")
	default:
	}
}

func TestMockClock_WaitTickerTimeout(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	if c.WaitTicker(10*time.Millisecond) != nil {
		t.Error("expected nil on timeout")
	}
}
