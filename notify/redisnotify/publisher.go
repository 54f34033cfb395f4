// Package redisnotify ships removal events to other processes over Redis
// pub/sub. Payload values never leave the process; only the metadata in
// gencache.RemovalEvent is published.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	pub, _ := redisnotify.NewPublisher(rdb, redisnotify.Options{Channel: "gencache:removals"})
//	defer pub.Close(context.Background())
//	store.RegisterRemovalHandler(pub.Handler())
package redisnotify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/codec"
	"github.com/unkn0wn-root/gencache/internal/wire"
)

// Client is the slice of redis.UniversalClient the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

var _ Client = (redis.UniversalClient)(nil)

type Options struct {
	Channel   string        // required
	Codec     codec.ID      // default codec.IDMsgpack
	QueueSize int           // default 1024
	Workers   int           // default 1
	BatchSize int           // events per PUBLISH; default 64
	Timeout   time.Duration // per PUBLISH; default 2s

	// Reasons limits which removals are published. Empty means all.
	Reasons []gencache.RemovalReason

	Now    func() time.Time
	Logger gencache.Logger
}

type PublisherStats struct {
	Queued    uint64
	Published uint64
	Dropped   uint64
	Failed    uint64
}

// Publisher is a removal handler that queues events and publishes them from
// a small worker pool. The store's removal path never waits on Redis: when
// the queue is full the event is dropped and counted.
type Publisher struct {
	rdb     Client
	channel string
	codecID codec.ID
	codec   codec.Codec[gencache.RemovalEvent]
	batch   int
	timeout time.Duration
	reasons map[gencache.RemovalReason]bool
	now     func() time.Time
	log     gencache.Logger

	q      chan gencache.RemovalEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	queued    atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

var ErrNoChannel = errors.New("redisnotify: channel is required")

func NewPublisher(rdb Client, opts Options) (*Publisher, error) {
	if rdb == nil {
		return nil, errors.New("redisnotify: nil client")
	}
	if opts.Channel == "" {
		return nil, ErrNoChannel
	}
	id := opts.Codec
	if id == 0 {
		id = codec.IDMsgpack
	}
	c, err := codec.ForEvents(id)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		rdb:     rdb,
		channel: opts.Channel,
		codecID: id,
		codec:   c,
		batch:   opts.BatchSize,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     opts.Logger,
		done:    make(chan struct{}),
	}
	if p.batch <= 0 {
		p.batch = 64
	}
	if p.timeout <= 0 {
		p.timeout = 2 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.log == nil {
		p.log = gencache.NopLogger{}
	}
	if len(opts.Reasons) > 0 {
		p.reasons = make(map[gencache.RemovalReason]bool, len(opts.Reasons))
		for _, r := range opts.Reasons {
			p.reasons[r] = true
		}
	}

	qlen := opts.QueueSize
	if qlen <= 0 {
		qlen = 1024
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	p.q = make(chan gencache.RemovalEvent, qlen)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

// Handler returns the function to pass to Store.RegisterRemovalHandler.
func (p *Publisher) Handler() gencache.RemovalHandler {
	return func(e *gencache.Entry, reason gencache.RemovalReason) {
		if p.reasons != nil && !p.reasons[reason] {
			return
		}
		p.Enqueue(gencache.NewRemovalEvent(e, reason, p.now()))
	}
}

// Enqueue reports whether ev was accepted.
func (p *Publisher) Enqueue(ev gencache.RemovalEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.q <- ev:
		p.queued.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	buf := make([]gencache.RemovalEvent, 0, p.batch)
	for ev := range p.q {
		buf = append(buf[:0], ev)
	fill:
		for len(buf) < p.batch {
			select {
			case next, ok := <-p.q:
				if !ok {
					break fill
				}
				buf = append(buf, next)
			default:
				break fill
			}
		}
		p.flush(buf)
	}
}

func (p *Publisher) flush(evs []gencache.RemovalEvent) {
	msg, err := p.frame(evs)
	if err != nil {
		p.failed.Add(uint64(len(evs)))
		p.log.Error("encode removal events", gencache.Fields{"n": len(evs), "err": err})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, msg).Err(); err != nil {
		p.failed.Add(uint64(len(evs)))
		p.log.Warn("publish removal events", gencache.Fields{
			"channel": p.channel,
			"n":       len(evs),
			"err":     err,
		})
		return
	}
	p.published.Add(uint64(len(evs)))
}

func (p *Publisher) frame(evs []gencache.RemovalEvent) ([]byte, error) {
	if len(evs) == 1 {
		b, err := p.codec.Encode(evs[0])
		if err != nil {
			return nil, err
		}
		return wire.EncodeSingle(byte(p.codecID), b), nil
	}
	payloads := make([][]byte, len(evs))
	for i, ev := range evs {
		b, err := p.codec.Encode(ev)
		if err != nil {
			return nil, fmt.Errorf("event %s/%s: %w", ev.Namespace, ev.Key, err)
		}
		payloads[i] = b
	}
	return wire.EncodeBatch(byte(p.codecID), payloads), nil
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.q)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Queued:    p.queued.Load(),
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}
