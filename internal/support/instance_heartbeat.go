package support

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	InstanceHeartbeatKeyPrefix = "feedsnap:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

var instanceID = generateInstanceID()

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

func InstanceID() string { return instanceID }

// Heartbeat is the value stored under an instance key.
type Heartbeat struct {
	Started      int64 `json:"started"`
	LastSnapshot int64 `json:"last_snapshot"`
}

// StartInstanceHeartbeat refreshes the instance key every interval until ctx
// is done. lastSnapshot reports the timestamp of the latest snapshot, or 0.
func StartInstanceHeartbeat(ctx context.Context, client redis.Cmdable, keyPrefix string, interval, ttl time.Duration, lastSnapshot func() int64) {
	if ctx == nil {
		ctx = context.Background()
	}
	heartbeatKey := keyPrefix + instanceID
	started := time.Now().Unix()

	sendHeartbeat := func() {
		beat := Heartbeat{Started: started}
		if lastSnapshot != nil {
			beat.LastSnapshot = lastSnapshot()
		}
		payload, err := json.Marshal(beat)
		if err != nil {
			log.Error("Failed to encode instance heartbeat", "error", err)
			return
		}
		if err := client.SetEx(ctx, heartbeatKey, payload, ttl).Err(); err != nil && ctx.Err() == nil {
			log.Error("Failed to update instance heartbeat", "key", heartbeatKey, "error", err)
		}
	}

	sendHeartbeat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendHeartbeat()
		}
	}
}

// LaunchInstanceHeartbeat runs StartInstanceHeartbeat with the default
// timings in a new goroutine.
func LaunchInstanceHeartbeat(parent context.Context, client redis.Cmdable, lastSnapshot func() int64) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartInstanceHeartbeat(ctx, client, InstanceHeartbeatKeyPrefix, DefaultHeartbeatInterval, DefaultHeartbeatTTL, lastSnapshot)
	return cancel
}
