package redisnotify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/codec"
	"github.com/unkn0wn-root/gencache/internal/wire"
)

// DefaultMaxEvent caps a single decoded event payload.
const DefaultMaxEvent = 64 << 10

// Decode unpacks one published message into its events.
func Decode(msg []byte, maxEvent int) ([]gencache.RemovalEvent, error) {
	id, payloads, err := wire.Decode(msg)
	if err != nil {
		return nil, err
	}
	inner, err := codec.ForEvents(codec.ID(id))
	if err != nil {
		return nil, err
	}
	c := codec.LimitCodec[gencache.RemovalEvent]{Inner: inner, MaxDecode: maxEvent}

	out := make([]gencache.RemovalEvent, 0, len(payloads))
	for i, p := range payloads {
		ev, err := c.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("redisnotify: event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe delivers events published on channel to fn until ctx ends.
// Malformed messages are logged and skipped.
func Subscribe(ctx context.Context, rdb redis.UniversalClient, channel string, log gencache.Logger, fn func(gencache.RemovalEvent)) error {
	if log == nil {
		log = gencache.NopLogger{}
	}
	ps := rdb.Subscribe(ctx, channel)
	defer ps.Close()

	// wait for the subscription to be confirmed so early events are not lost
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redisnotify: subscribe %s: %w", channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			evs, err := Decode([]byte(m.Payload), DefaultMaxEvent)
			if err != nil {
				log.Warn("drop malformed removal message", gencache.Fields{"channel": channel, "err": err})
				continue
			}
			for _, ev := range evs {
				fn(ev)
			}
		}
	}
}
