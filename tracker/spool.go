// SPDX-License-Identifier: MIT

package tracker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/internal/metrics"
)

const spoolKeyPrefix = "batch:"

// spool is the on-disk holding area for batches that could not be
// delivered. Batches are keyed by a monotonic sequence and replayed FIFO.
type spool struct {
	db  *badger.DB
	seq *badger.Sequence
	max int
	log zerolog.Logger
}

func openSpool(dir string, max int, logger zerolog.Logger) (*spool, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("tracker: open spool: %w", err)
	}
	seq, err := db.GetSequence([]byte("spool_seq"), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tracker: spool sequence: %w", err)
	}
	s := &spool{db: db, seq: seq, max: max, log: logger}
	metrics.SetSpoolDepth(s.Len())
	return s, nil
}

func spoolKey(seq uint64) []byte {
	key := make([]byte, len(spoolKeyPrefix)+8)
	copy(key, spoolKeyPrefix)
	binary.BigEndian.PutUint64(key[len(spoolKeyPrefix):], seq)
	return key
}

// Append stores a failed batch. When the spool is full the oldest batch is
// evicted first; losing old data beats losing new data.
func (s *spool) Append(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	for s.Len() >= s.max {
		if err := s.dropOldest(); err != nil {
			return err
		}
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("tracker: spool sequence: %w", err)
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("tracker: spool marshal: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(spoolKey(n), data)
	})
	if err != nil {
		return fmt.Errorf("tracker: spool write: %w", err)
	}
	metrics.SetSpoolDepth(s.Len())
	return nil
}

// Len counts spooled batches.
func (s *spool) Len() int {
	count := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(spoolKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

func (s *spool) dropOldest() error {
	key, _, err := s.oldest()
	if err != nil || key == nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *spool) oldest() (key []byte, events []Event, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(spoolKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		key = item.KeyCopy(nil)
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &events)
		})
	})
	return key, events, err
}

// Replay delivers up to maxBatches spooled batches FIFO through deliver,
// deleting each on success and stopping at the first failure.
func (s *spool) Replay(maxBatches int, deliver func([]Event) error) int {
	replayed := 0
	for replayed < maxBatches {
		key, events, err := s.oldest()
		if err != nil {
			s.log.Warn().Err(err).Msg("spool read failed")
			break
		}
		if key == nil {
			break
		}
		if len(events) > 0 {
			if err := deliver(events); err != nil {
				break
			}
		}
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			s.log.Warn().Err(err).Msg("spool delete failed")
			break
		}
		replayed++
	}
	if replayed > 0 {
		metrics.SetSpoolDepth(s.Len())
	}
	return replayed
}

func (s *spool) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn().Err(err).Msg("spool sequence release failed")
	}
	return s.db.Close()
}
