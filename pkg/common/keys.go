package common

import "fmt"

var (
	// Event keys
	eventsPrefix  string = "bucketmount:events"
	eventsLast    string = "bucketmount:events:last:%s" // channel
	eventsLastTTL        = 24 * 60 * 60               // seconds
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Event keys
func (rk *redisKeys) EventsChannel() string {
	return eventsPrefix
}

func (rk *redisKeys) EventsLast(channel string) string {
	return fmt.Sprintf(eventsLast, channel)
}
