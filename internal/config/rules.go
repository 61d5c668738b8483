// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/redact"
)

// rulesFile is the YAML shape of the server-side redaction rule file.
type rulesFile struct {
	Selectors []string `yaml:"selectors"`
	Fields    []string `yaml:"fields"`
}

// LoadRules reads and compiles the redaction rule file at path.
func LoadRules(path string) (*redact.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rules %s: %w", path, err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("config: parse rules %s: %w", path, err)
	}
	rules, err := redact.Compile(rf.Selectors, rf.Fields)
	if err != nil {
		return nil, fmt.Errorf("config: compile rules %s: %w", path, err)
	}
	return rules, nil
}

// RulesWatcher hot-reloads the redaction rule file into a redact.Holder.
// An invalid file keeps the previous rules in place; redaction never
// weakens because an edit went wrong.
type RulesWatcher struct {
	path    string
	holder  *redact.Holder
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewRulesWatcher creates a watcher updating holder from path.
func NewRulesWatcher(path string, holder *redact.Holder) *RulesWatcher {
	return &RulesWatcher{
		path:   path,
		holder: holder,
		logger: log.WithComponent("rules"),
	}
}

// Start begins watching. A no-op when no rule file is configured.
func (w *RulesWatcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create rules watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch rules file: %w", err)
	}

	w.logger.Info().
		Str("event", "rules.watcher_started").
		Str("path", w.path).
		Msg("watching redaction rules for changes")

	go w.watchLoop(ctx)
	return nil
}

func (w *RulesWatcher) watchLoop(ctx context.Context) {
	// Debounce rapid editor write sequences into one reload.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().
				Err(err).
				Str("event", "rules.watcher_error").
				Msg("rules watcher error")
		}
	}
}

func (w *RulesWatcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("event", "rules.reload_failed").
			Msg("keeping previous redaction rules")
		return
	}
	w.holder.Swap(rules)
	w.logger.Info().
		Str("event", "rules.reloaded").
		Int("selectors", len(rules.Selectors())).
		Int("fields", rules.FieldCount()).
		Msg("redaction rules reloaded")
}
