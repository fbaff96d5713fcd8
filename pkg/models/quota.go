package models

import "time"

// QuotaResource is a metered resource
type QuotaResource string

const (
	QuotaMessages QuotaResource = "messages"
	QuotaTokens   QuotaResource = "tokens"
	QuotaUploads  QuotaResource = "uploads"
)

// QuotaScopeType distinguishes workspace-level from user-level buckets
type QuotaScopeType string

const (
	QuotaScopeWorkspace QuotaScopeType = "workspace"
	QuotaScopeUser      QuotaScopeType = "user"
)

// QuotaScope identifies whose consumption is being counted
type QuotaScope struct {
	Type QuotaScopeType `json:"type"`
	ID   string         `json:"id"`
}

// QuotaDecision is the result of a quota check
type QuotaDecision struct {
	Allowed           bool  `json:"allowed"`
	Remaining         int64 `json:"remaining"`
	RetryAfterSeconds int64 `json:"retry_after_seconds"`
}

// HourFloor truncates t to the start of its hour. Quota buckets are keyed on
// this boundary so a denial at HH:59:59 clears at HH+1:00:00.
func HourFloor(t time.Time) time.Time { return t.Truncate(time.Hour) }
