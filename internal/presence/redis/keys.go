package redis

import "fmt"

// Key prefix for everything playerhub writes to Redis
const keyPrefix = "playerhub"

// eventsChannel returns the default pub/sub channel for session events
func eventsChannel() string {
	return fmt.Sprintf("%s:events", keyPrefix)
}
