package config

import (
	"sync"
	"sync/atomic"
	"time"
)

var (
	refreshInterval  atomic.Value
	refreshListeners []chan time.Duration
	listenersMu      sync.Mutex
)

func init() {
	refreshInterval.Store(time.Duration(0))
}

// SetRefreshInterval recomputes the refresh interval from the current config
// and notifies listeners when it changed.
func SetRefreshInterval() {
	setRefreshInterval(calculateRefreshInterval(GetConfig()))
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// GetRefreshInterval returns the configured refresh interval. Zero means
// scheduled refreshes are disabled.
func GetRefreshInterval() time.Duration {
	return refreshInterval.Load().(time.Duration)
}

func RefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	refreshListeners = append(refreshListeners, ch)
	listenersMu.Unlock()

	ch <- GetRefreshInterval()
	return ch
}

func setRefreshInterval(interval time.Duration) {
	if interval < 0 {
		interval = 0
	}

	current := GetRefreshInterval()
	if current == interval {
		return
	}

	refreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range refreshListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateRefreshInterval(cfg Config) time.Duration {
	timer := cfg.RefreshTimer
	if timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0 {
		return 0
	}
	return CalculateBetweenTime(timer)
}
