// SPDX-License-Identifier: MIT

package tracker

// Event kinds emitted by the tracker.
const (
	TypeTrack    = "track"
	TypeCustom   = "custom"
	TypeIdentify = "identify"
)

// Event is one tracked occurrence. This is the wire shape: the collector
// decodes exactly what the client encodes.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Target    string         `json:"target,omitempty"` // CSS-like element path of the originating element
	URL       string         `json:"url,omitempty"`
	Timestamp int64          `json:"ts"` // unix milliseconds
	Props     map[string]any `json:"props,omitempty"`
}

// Batch is the delivery unit posted to the collector.
type Batch struct {
	SentAt int64   `json:"sent_at"` // unix milliseconds
	Events []Event `json:"events"`
}

// WriteKeyHeader carries the write key on ingest requests.
const WriteKeyHeader = "X-Write-Key"
