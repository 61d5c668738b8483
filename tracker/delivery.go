// SPDX-License-Identifier: MIT

package tracker

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tracelight/tracelight/internal/metrics"
	"github.com/tracelight/tracelight/internal/resilience"
)

// errPermanent marks delivery failures that retrying cannot fix; the batch
// is dropped rather than spooled.
var errPermanent = errors.New("tracker: batch rejected")

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

type sender struct {
	endpoint   string
	writeKey   string
	client     *http.Client
	breaker    *resilience.CircuitBreaker
	limiter    *rate.Limiter
	maxRetries int
	log        zerolog.Logger
}

func newSender(opts Options, logger zerolog.Logger) *sender {
	s := &sender{
		endpoint:   strings.TrimRight(opts.Endpoint, "/") + "/v1/batch",
		writeKey:   opts.WriteKey,
		client:     opts.HTTPClient,
		breaker:    resilience.NewCircuitBreaker("delivery", 3, 30*time.Second),
		maxRetries: opts.MaxRetries,
		log:        logger,
	}
	if opts.DeliveryRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.DeliveryRPS), 1)
	}
	return s
}

// Send delivers one batch, retrying transient failures with exponential
// backoff. It returns nil on success, errPermanent when the collector
// rejected the batch outright, and the last transient error otherwise (the
// caller spools in that case).
func (s *sender) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		err := s.breaker.Execute(func() error {
			return s.post(ctx, events)
		})
		metrics.ObserveDelivery(time.Since(start).Seconds())

		switch {
		case err == nil:
			metrics.DeliveryAttempt("ok")
			return nil
		case errors.Is(err, errPermanent):
			metrics.DeliveryAttempt("drop")
			s.log.Warn().Err(err).Int("batch_size", len(events)).Msg("batch rejected by collector, dropping")
			return err
		case errors.Is(err, errTooLarge):
			// Split and deliver the halves independently.
			if len(events) == 1 {
				metrics.DeliveryAttempt("drop")
				return fmt.Errorf("%w: single event exceeds size limit", errPermanent)
			}
			mid := len(events) / 2
			if err := s.Send(ctx, events[:mid]); err != nil {
				return err
			}
			return s.Send(ctx, events[mid:])
		default:
			metrics.DeliveryAttempt("retry")
			lastErr = err
			s.log.Debug().
				Err(err).
				Int("attempt", attempt+1).
				Int("batch_size", len(events)).
				Msg("delivery attempt failed")
		}
	}
	return lastErr
}

var errTooLarge = errors.New("tracker: batch too large")

func isPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

func (s *sender) post(ctx context.Context, events []Event) error {
	batch := Batch{SentAt: time.Now().UnixMilli(), Events: events}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("gzip batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set(WriteKeyHeader, s.writeKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver batch: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return errTooLarge
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("deliver batch: status %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	}
}

// backoff returns the delay before the given retry attempt (1-based), with
// jitter to avoid thundering-herd replays. The shift is clamped so large
// attempt counts cannot overflow the duration.
func backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 4 {
		shift = 4 // retryBaseDelay<<4 == retryMaxDelay
	}
	d := retryBaseDelay << shift
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
