package keepalive

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestControllerFiresAfterInactivity(t *testing.T) {
	var fired atomic.Bool
	c := New(20*time.Millisecond, func() { fired.Store(true) })
	c.Start()

	time.Sleep(10 * time.Millisecond)
	c.Reset() // activity resets the clock
	if fired.Load() {
		t.Fatal("fired before the interval elapsed")
	}

	time.Sleep(50 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("expected fire after sustained inactivity")
	}
}

func TestControllerDisabledAtZeroInterval(t *testing.T) {
	var fired atomic.Bool
	c := New(0, func() { fired.Store(true) })
	c.Start()
	c.Reset()
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Fatal("a zero interval must disable keep-alive scheduling")
	}
}

func TestControllerStopCancelsPendingFire(t *testing.T) {
	var fired atomic.Bool
	c := New(10*time.Millisecond, func() { fired.Store(true) })
	c.Start()
	c.Stop()
	time.Sleep(30 * time.Millisecond)
	if fired.Load() {
		t.Fatal("Stop should cancel the pending fire")
	}
}
