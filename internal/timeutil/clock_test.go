package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Timer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(time.Millisecond)

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRealClock_TimerStop(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(time.Hour)

	if !timer.Stop() {
		t.Error("Stop() = false for a pending timer")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Second)
	if want, got := start.Add(90*time.Second), clock.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestMockClock_TimerFiresAtDeadline(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewMockClock(start)
	timer := clock.NewTimer(10 * time.Minute)

	clock.Advance(9 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Advance(time.Minute)
	select {
	case fired := <-timer.C():
		if want := start.Add(10 * time.Minute); !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestMockClock_StoppedTimerNeverFires(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	timer := clock.NewTimer(time.Minute)

	if !timer.Stop() {
		t.Error("Stop() = false for a pending timer")
	}
	if timer.Stop() {
		t.Error("Stop() = true for an already-stopped timer")
	}

	clock.Advance(2 * time.Minute)
	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	default:
	}
}

func TestMockClock_MultipleTimers(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewMockClock(start)
	early := clock.NewTimer(time.Minute)
	late := clock.NewTimer(time.Hour)

	clock.Advance(time.Minute)
	select {
	case <-early.C():
	default:
		t.Fatal("one-minute timer did not fire")
	}
	select {
	case <-late.C():
		t.Fatal("one-hour timer fired early")
	default:
	}
}
