// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldRequestID = "request_id"
	FieldWriteKey  = "write_key"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldEventName = "event_name"
	FieldBatchSize = "batch_size"
	FieldDropped   = "dropped"
	FieldAttempt   = "attempt"

	// Transport fields
	FieldEndpoint = "endpoint"
	FieldStatus   = "status"
	FieldRemoteIP = "remote_ip"
	FieldPath     = "path"
	FieldMethod   = "method"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
