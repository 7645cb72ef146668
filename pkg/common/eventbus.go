package common

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/beam-cloud/bucketmount/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	subscriberBuffer = 64
	resubscribeDelay = time.Second
)

// EventBus fans supervisor events out to handlers and stream subscribers.
// With a redis client, events are published to the channel and dispatched
// when they come back, so every process listening on it sees the same stream.
type EventBus struct {
	id       string
	rdb      *RedisClient
	channel  string
	handlers map[types.EventType][]func(types.Event)
	subs     map[string]chan types.Event
	mu       sync.RWMutex
	ctx      context.Context

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

func NewEventBus(ctx context.Context, rdb *RedisClient, channel string) *EventBus {
	if channel == "" {
		channel = Keys.EventsChannel()
	}
	return &EventBus{
		id:         GenerateID("bus"),
		rdb:        rdb,
		channel:    channel,
		handlers:   make(map[types.EventType][]func(types.Event)),
		subs:       make(map[string]chan types.Event),
		ctx:        ctx,
		subscribed: make(chan struct{}),
	}
}

// ID is stamped as Source on every event this bus publishes.
func (eb *EventBus) ID() string {
	return eb.id
}

func (eb *EventBus) On(t types.EventType, fn func(types.Event)) {
	eb.mu.Lock()
	eb.handlers[t] = append(eb.handlers[t], fn)
	eb.mu.Unlock()
}

// Subscribe returns a channel receiving every event. Slow subscribers miss
// events rather than blocking the publisher. cancel closes the channel.
func (eb *EventBus) Subscribe() (<-chan types.Event, func()) {
	id := GenerateSubscriberID()
	ch := make(chan types.Event, subscriberBuffer)

	eb.mu.Lock()
	eb.subs[id] = ch
	eb.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.mu.Lock()
			delete(eb.subs, id)
			close(ch)
			eb.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish implements mount.EventSink.
func (eb *EventBus) Publish(e types.Event) {
	if e.Source == "" {
		e.Source = eb.id
	}
	if eb.rdb == nil {
		eb.dispatch(e)
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode event")
		return
	}
	_, err = eb.rdb.Pipelined(eb.ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(eb.ctx, Keys.EventsLast(eb.channel), data, time.Duration(eventsLastTTL)*time.Second)
		pipe.Publish(eb.ctx, eb.channel, data)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("channel", eb.channel).Msg("event publish failed, delivering locally")
		eb.dispatch(e)
	}
}

// Last returns the most recent event published on the channel by any process.
// ok is false without redis or when nothing was published recently.
func (eb *EventBus) Last(ctx context.Context) (e types.Event, ok bool, err error) {
	if eb.rdb == nil {
		return types.Event{}, false, nil
	}
	data, err := eb.rdb.Get(ctx, Keys.EventsLast(eb.channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Event{}, false, nil
	}
	if err != nil {
		return types.Event{}, false, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return types.Event{}, false, err
	}
	return e, true, nil
}

func (eb *EventBus) dispatch(e types.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, fn := range eb.handlers[e.Type] {
		fn(e)
	}
	for id, ch := range eb.subs {
		select {
		case ch <- e:
		default:
			log.Debug().Str("subscriber", id).Str("type", string(e.Type)).Msg("subscriber full, event dropped")
		}
	}
}

// Subscribed is closed once the bus is receiving from redis, or immediately
// when running without it.
func (eb *EventBus) Subscribed() <-chan struct{} {
	if eb.rdb == nil {
		eb.markSubscribed()
	}
	return eb.subscribed
}

func (eb *EventBus) markSubscribed() {
	eb.subscribedOnce.Do(func() { close(eb.subscribed) })
}

// Start blocks until the bus context ends.
func (eb *EventBus) Start() {
	if eb.rdb == nil {
		eb.markSubscribed()
		<-eb.ctx.Done()
		return
	}
	log.Info().Str("channel", eb.channel).Msg("eventbus started")
	eb.listen()
}

func (eb *EventBus) listen() {
	for {
		if eb.ctx.Err() != nil {
			return
		}
		msgs, errs := eb.rdb.Subscribe(eb.ctx, eb.channel)
		if err := eb.recv(msgs, errs); err != nil && eb.ctx.Err() == nil {
			log.Warn().Err(err).Str("channel", eb.channel).Msg("eventbus subscription lost, retrying")
			select {
			case <-eb.ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
		}
	}
}

func (eb *EventBus) recv(msgs <-chan *redis.Message, errs <-chan error) error {
	select {
	case err := <-errs:
		return err
	default:
	}
	eb.markSubscribed()

	for {
		select {
		case <-eb.ctx.Done():
			return nil
		case err := <-errs:
			return err
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var e types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			eb.dispatch(e)
		}
	}
}
