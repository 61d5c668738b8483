// SPDX-License-Identifier: MIT

// Package tracker is the client SDK: it captures application events,
// applies redaction rules, batches events in the background and delivers
// them to a collector. Delivery failures degrade to an on-disk spool;
// tracking never breaks the host application.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/redact"
)

var (
	// ErrStopped is returned by capture calls on a tracker that is not
	// running.
	ErrStopped = errors.New("tracker: not started")

	// ErrStarted is returned by Start on a tracker that already runs.
	ErrStarted = errors.New("tracker: already started")
)

// Tracker is the public capture surface. All methods are safe for
// concurrent use.
type Tracker struct {
	opts    Options
	rules   *redact.Holder
	session *sessionManager
	sender  *sender
	spool   *spool

	mu      sync.Mutex
	batcher *batcher
	started bool
	log     zerolog.Logger
}

// New validates opts and builds a stopped tracker. Call Start to begin
// capturing.
func New(opts Options) (*Tracker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := log.WithComponent("tracker")
	if opts.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
			logger = logger.Level(lvl)
		}
	}

	rules, err := redact.Compile(opts.RedactSelectors, opts.RedactFields)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		opts:    opts,
		rules:   redact.NewHolder(rules),
		session: newSessionManager(opts.StatePath, opts.SessionIdleTimeout, logger),
		sender:  newSender(opts, logger),
		log:     logger,
	}
	return t, nil
}

// Start opens the spool (if configured) and spawns the batching worker.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrStarted
	}

	if t.opts.SpoolDir != "" && t.spool == nil {
		sp, err := openSpool(t.opts.SpoolDir, t.opts.SpoolMaxBatches, t.log)
		if err != nil {
			return err
		}
		t.spool = sp
	}

	t.batcher = newBatcher(t.opts, t.sender.Send, t.spool, t.log)
	t.batcher.start()
	t.started = true
	t.log.Info().
		Str("endpoint", t.opts.Endpoint).
		Str(log.FieldSessionID, t.session.ID()).
		Msg("tracker started")
	return nil
}

// Stop flushes pending events, bounded by ctx, and releases resources.
// A stopped tracker can be started again.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return ErrStopped
	}
	t.started = false

	err := t.batcher.Stop(ctx)
	dropped := t.batcher.Dropped()
	t.batcher = nil
	t.session.Flush()

	if t.spool != nil {
		if cerr := t.spool.Close(); cerr != nil && err == nil {
			err = cerr
		}
		t.spool = nil
	}
	t.log.Info().Uint64(log.FieldDropped, dropped).Msg("tracker stopped")
	return err
}

// AddEvent captures a tracked event with a property map.
func (t *Tracker) AddEvent(name string, props map[string]any) error {
	return t.capture(TypeTrack, name, "", props)
}

// AddElementEvent captures an event originating from an element, described
// by a CSS-like path. Selector redaction rules apply to the path.
func (t *Tracker) AddElementEvent(name, target string, props map[string]any) error {
	return t.capture(TypeTrack, name, target, props)
}

// CustomEvent captures an application-defined named occurrence with an
// attached property map.
func (t *Tracker) CustomEvent(name string, props map[string]any) error {
	return t.capture(TypeCustom, name, "", props)
}

// Auth binds a user identity to the current session and emits an identify
// event.
func (t *Tracker) Auth(userID string) error {
	if userID == "" {
		return fmt.Errorf("tracker: empty user id")
	}
	t.session.SetUser(userID)
	return t.capture(TypeIdentify, "auth", "", nil)
}

// AddUserInfo attaches user traits to the identity and emits an identify
// event carrying them. Redacted fields are masked like any other property.
func (t *Tracker) AddUserInfo(info map[string]any) error {
	if len(info) == 0 {
		return nil
	}
	t.session.MergeTraits(info)
	return t.capture(TypeIdentify, "user_info", "", info)
}

// GetSessionID returns the current session ID.
func (t *Tracker) GetSessionID() string {
	return t.session.ID()
}

// Redact replaces the CSS-selector redaction list. Invalid selectors leave
// the previous rules in place and are reported.
func (t *Tracker) Redact(selectors []string) error {
	current := t.rules.Current()
	rules, err := redact.Compile(selectors, current.Fields())
	if err != nil {
		return err
	}
	t.rules.Swap(rules)
	return nil
}

// SetRedactedFields replaces the redacted property-name list.
func (t *Tracker) SetRedactedFields(fields []string) error {
	current := t.rules.Current()
	rules, err := redact.Compile(current.Selectors(), fields)
	if err != nil {
		return err
	}
	t.rules.Swap(rules)
	return nil
}

// Flush forces delivery of buffered events.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	b := t.batcher
	t.mu.Unlock()
	if b == nil {
		return ErrStopped
	}
	return b.Flush(ctx)
}

// Dropped returns the number of events dropped because the queue was full.
func (t *Tracker) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.batcher == nil {
		return 0
	}
	return t.batcher.Dropped()
}

// capture builds an event, redacts it, and enqueues it. Redaction runs
// before buffering so masked values are the only ones that can reach the
// wire or the spool.
func (t *Tracker) capture(kind, name, target string, props map[string]any) error {
	t.mu.Lock()
	b := t.batcher
	running := t.started
	t.mu.Unlock()
	if !running || b == nil {
		return ErrStopped
	}
	if name == "" {
		return fmt.Errorf("tracker: empty event name")
	}

	rules := t.rules.Current()
	props = cloneProps(props)
	if rules.MatchesTarget(target) {
		redact.MaskAll(props)
	}
	rules.MaskFields(props)

	e := Event{
		ID:        uuid.NewString(),
		Type:      kind,
		Name:      name,
		SessionID: t.session.Touch(),
		UserID:    t.session.User(),
		Target:    target,
		Timestamp: time.Now().UnixMilli(),
		Props:     props,
	}
	b.Enqueue(e)
	return nil
}

// cloneProps copies the caller's map one level deep (nested maps are
// copied too) so redaction never mutates caller-owned data.
func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneProps(nested)
			continue
		}
		out[k] = v
	}
	return out
}
