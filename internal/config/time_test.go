package config

import (
	"testing"
	"time"
)

func TestCalculateMillisecondsOfCheckingPeriod(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMillisecondsOfCheckingPeriod(timer); got != want {
		t.Fatalf("CalculateMillisecondsOfCheckingPeriod returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestSetRefreshInterval(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetRefreshInterval()
	origListeners := refreshListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		refreshInterval.Store(origInterval)
		refreshListeners = origListeners
	})

	refreshListeners = nil

	testCfg := DefaultConfig()
	testCfg.RefreshTimer = Timer{Hours: 6}
	configValue.Store(testCfg)
	SetRefreshInterval()

	if got := GetRefreshInterval(); got != 6*time.Hour {
		t.Fatalf("GetRefreshInterval returned %s, want 6h", got)
	}

	testCfg.RefreshTimer = Timer{}
	configValue.Store(testCfg)
	SetRefreshInterval()

	if got := GetRefreshInterval(); got != 0 {
		t.Fatalf("GetRefreshInterval returned %s, want 0 for an empty timer", got)
	}
}

func TestRefreshIntervalUpdates(t *testing.T) {
	origInterval := GetRefreshInterval()
	origListeners := refreshListeners

	t.Cleanup(func() {
		refreshInterval.Store(origInterval)
		refreshListeners = origListeners
	})

	refreshInterval.Store(time.Second)
	refreshListeners = nil

	ch := RefreshIntervalUpdates()
	first := <-ch
	if first != time.Second {
		t.Fatalf("initial update = %s, want 1s", first)
	}

	setRefreshInterval(5 * time.Second)

	select {
	case next := <-ch:
		if next != 5*time.Second {
			t.Fatalf("next update = %s, want 5s", next)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interval update")
	}

	// Verify no duplicate notification when same interval is set.
	setRefreshInterval(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("unexpected update when interval unchanged")
	case <-time.After(50 * time.Millisecond):
	}
}
