// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/internal/metrics"
)

// replayPerFlush bounds how many spooled batches one successful flush may
// replay, so a long outage does not stall fresh events on recovery.
const replayPerFlush = 8

// batcher owns the in-memory queue and the single worker goroutine that
// turns events into delivered batches. Enqueue never blocks the caller;
// when the queue is full the event is dropped and counted.
type batcher struct {
	ch       chan Event
	flushReq chan chan error
	done     chan struct{}
	wg       sync.WaitGroup
	dropped  atomic.Uint64

	stopMu  sync.Mutex
	stopCtx context.Context // set by Stop before done closes

	size     int
	interval time.Duration
	send     func(context.Context, []Event) error
	spool    *spool // nil disables spooling
	log      zerolog.Logger
}

func newBatcher(opts Options, send func(context.Context, []Event) error, sp *spool, logger zerolog.Logger) *batcher {
	return &batcher{
		ch:       make(chan Event, opts.QueueSize),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		size:     opts.BatchSize,
		interval: opts.FlushInterval,
		send:     send,
		spool:    sp,
		log:      logger,
	}
}

func (b *batcher) start() {
	b.wg.Add(1)
	go b.run()
}

// Enqueue hands an event to the worker. It never blocks: a full queue
// drops the event and bumps the drop counter.
func (b *batcher) Enqueue(e Event) {
	select {
	case b.ch <- e:
	case <-b.done:
	default:
		b.dropped.Add(1)
		metrics.EventsDropped("queue_full", 1)
	}
}

// Flush delivers everything currently buffered and blocks until done.
func (b *batcher) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case b.flushReq <- reply:
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue, performs a final flush bounded by ctx, and waits
// for the worker to exit. The worker's own final flush runs under the same
// ctx so a dead collector cannot hold Stop past the caller's deadline.
func (b *batcher) Stop(ctx context.Context) error {
	b.stopMu.Lock()
	b.stopCtx = ctx
	b.stopMu.Unlock()
	close(b.done)
	b.wg.Wait()

	// Final drain runs on the caller's goroutine with the caller's bound.
	var buf []Event
	for {
		select {
		case e := <-b.ch:
			buf = append(buf, e)
			continue
		default:
		}
		break
	}
	var err error
	for len(buf) > 0 && err == nil {
		n := min(len(buf), b.size)
		err = b.deliver(ctx, buf[:n])
		buf = buf[n:]
	}
	b.discard(buf)
	return err
}

func (b *batcher) stopContext() context.Context {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopCtx != nil {
		return b.stopCtx
	}
	return context.Background()
}

// discard accounts for events abandoned after a delivery failure.
func (b *batcher) discard(events []Event) {
	if len(events) == 0 {
		return
	}
	b.dropped.Add(uint64(len(events)))
	metrics.EventsDropped("delivery_failed", len(events))
	b.log.Warn().Int("batch_size", len(events)).Msg("discarding undelivered events after failure")
}

// Dropped returns the number of events dropped without delivery, either on
// enqueue with a full queue or abandoned after a delivery failure.
func (b *batcher) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *batcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	buf := make([]Event, 0, b.size)

	// flush delivers buf in batch-size chunks. buf can exceed the batch
	// size after an explicit flush drained the queue.
	flush := func(ctx context.Context) error {
		var err error
		for len(buf) > 0 && err == nil {
			n := min(len(buf), b.size)
			err = b.deliver(ctx, buf[:n])
			buf = buf[n:]
		}
		b.discard(buf)
		buf = buf[:0]
		if err == nil {
			b.replay(ctx)
		}
		return err
	}

	// drain moves everything already queued into buf without blocking.
	drain := func() {
		for {
			select {
			case e := <-b.ch:
				buf = append(buf, e)
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-b.ch:
			buf = append(buf, e)
			if len(buf) >= b.size {
				_ = flush(context.Background())
				ticker.Reset(b.interval)
			}
		case <-ticker.C:
			_ = flush(context.Background())
		case reply := <-b.flushReq:
			drain()
			reply <- flush(context.Background())
			ticker.Reset(b.interval)
		case <-b.done:
			drain()
			_ = flush(b.stopContext())
			return
		}
	}
}

// deliver sends one batch; transient failure diverts the batch to the
// spool so delivery problems never surface to the host application.
func (b *batcher) deliver(ctx context.Context, events []Event) error {
	err := b.send(ctx, events)
	switch {
	case err == nil:
		return nil
	case isPermanent(err):
		return nil // logged by the sender, nothing to keep
	case b.spool != nil:
		cp := make([]Event, len(events))
		copy(cp, events)
		if serr := b.spool.Append(cp); serr != nil {
			b.dropped.Add(uint64(len(events)))
			metrics.EventsDropped("delivery_failed", len(events))
			b.log.Warn().Err(serr).Int("batch_size", len(events)).Msg("spool append failed, batch lost")
			return serr
		}
		metrics.DeliveryAttempt("spool")
		return nil
	default:
		b.dropped.Add(uint64(len(events)))
		metrics.EventsDropped("delivery_failed", len(events))
		b.log.Warn().Err(err).Int("batch_size", len(events)).Msg("delivery failed and spooling disabled, batch lost")
		return err
	}
}

// replay pushes spooled batches through the sender after a success.
func (b *batcher) replay(ctx context.Context) {
	if b.spool == nil {
		return
	}
	n := b.spool.Replay(replayPerFlush, func(events []Event) error {
		return b.send(ctx, events)
	})
	if n > 0 {
		b.log.Debug().Int("batches", n).Msg("replayed spooled batches")
	}
}
