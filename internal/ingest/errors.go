package ingest

import (
	"fmt"
	"time"
)

// The ingestion error taxonomy. Validation and rate-limit rejections never
// touch the store or consume provider quota; storage failures are the only
// class a caller may reasonably retry. AI failures are absent on purpose:
// they are absorbed by the enhancer's fallback and never surface here.

// InvalidError means the submission failed validation. The reason describes
// the shape of the input, never its content, so it is safe to return
// verbatim to the caller.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid submission: %s", e.Reason)
}

// RateLimitedError means the client identity has spent its window quota.
// Terminal for this request; the caller may retry after RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// StorageError means the persistence layer failed. Full detail is logged
// server-side; callers only ever see a generic message.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
